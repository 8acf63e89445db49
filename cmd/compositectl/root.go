package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/httpclient"
)

// NewRootCommand creates the compositectl command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "compositectl",
		Short: "Composite object metadata CLI",
		Long: `Command line client for the composite metadata service.

Builds scalar and parallel stream objects, inspects and deletes them,
persists them to snapshot storage and manages object names.

The server address is taken from --server, then COMPOSITE_SERVER_URL,
then http://localhost:8080/api/v1. A .env file in the current directory
is loaded first.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	rootCmd.PersistentFlags().String("server", "", "metadata service base URL")
	rootCmd.PersistentFlags().String("session", "", "resume an existing session id")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "per-request timeout")

	rootCmd.AddCommand(NewScalarCommand())
	rootCmd.AddCommand(NewParallelStreamCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewSealCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewPersistCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewNameCommand())

	return rootCmd
}

// clientFromFlags connects to the server named by the global flags
func clientFromFlags(cmd *cobra.Command) (*httpclient.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = os.Getenv("COMPOSITE_SERVER_URL")
	}
	if server == "" {
		server = "http://localhost:8080/api/v1"
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	opts := []httpclient.Option{httpclient.WithTimeout(timeout)}
	if raw, _ := cmd.Flags().GetString("session"); raw != "" {
		session, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid session id: %w", err)
		}
		opts = append(opts, httpclient.WithSession(session))
	}
	return httpclient.New(server, opts...)
}

func parseIDs(args []string) ([]composite.ObjectID, error) {
	ids := make([]composite.ObjectID, 0, len(args))
	for _, a := range args {
		id, err := composite.ParseObjectID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
