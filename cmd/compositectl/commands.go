package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-composite/pkg/composite"
)

// parseValue reads a typed literal: int:42, bool:true, ref:o..., or a
// plain string (optionally prefixed str:).
func parseValue(raw string) (composite.Value, error) {
	kind, rest, found := strings.Cut(raw, ":")
	if !found {
		return composite.StringValue(raw), nil
	}
	switch kind {
	case "int":
		v, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return composite.Value{}, fmt.Errorf("invalid int %q", rest)
		}
		return composite.IntValue(v), nil
	case "bool":
		v, err := strconv.ParseBool(rest)
		if err != nil {
			return composite.Value{}, fmt.Errorf("invalid bool %q", rest)
		}
		return composite.BoolValue(v), nil
	case "ref":
		id, err := composite.ParseObjectID(rest)
		if err != nil {
			return composite.Value{}, err
		}
		return composite.RefValue(id), nil
	case "str":
		return composite.StringValue(rest), nil
	default:
		return composite.StringValue(raw), nil
	}
}

// parseFields parses repeated --field name=value flags.
func parseFields(raw []string) (map[string]composite.Value, error) {
	fields := make(map[string]composite.Value, len(raw))
	for _, f := range raw {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("field %q must be name=value", f)
		}
		v, err := parseValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = v
	}
	return fields, nil
}

// NewScalarCommand creates the scalar command
func NewScalarCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scalar <value>",
		Short: "Build a scalar object",
		Long:  `Build a sealed scalar object. The value may be typed: int:42, bool:true, ref:<id>.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			id, err := composite.NewScalarBuilder(v).Build(cmd.Context(), client)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

// NewParallelStreamCommand creates the parallel-stream command
func NewParallelStreamCommand() *cobra.Command {
	var fields []string
	var rejectDuplicates bool

	cmd := &cobra.Command{
		Use:   "parallel-stream <stream-id>...",
		Short: "Build a parallel stream from sealed streams",
		Long:  `Build a parallel stream whose members are the given sealed objects, in order.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}

			policy := composite.AllowDuplicates
			if rejectDuplicates {
				policy = composite.RejectDuplicates
			}
			b := composite.NewParallelStreamBuilder(composite.WithDuplicatePolicy(policy))
			for _, id := range ids {
				if err := b.AddStream(id); err != nil {
					return err
				}
			}
			for name, v := range parsed {
				if err := b.SetField(name, v); err != nil {
					return err
				}
			}

			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			id, err := b.Build(cmd.Context(), client)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", nil, "scalar field name=value (repeatable)")
	cmd.Flags().BoolVar(&rejectDuplicates, "reject-duplicates", false, "fail when a stream is given twice")
	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "get <object-id>",
		Short: "Print a sealed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := composite.ParseObjectID(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			var doc *composite.Document
			if snapshot {
				doc, err = client.LoadSnapshot(cmd.Context(), id)
			} else {
				doc, err = client.Resolve(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "read the persisted snapshot instead of the live document")
	return cmd
}

// NewSealCommand creates the seal command
func NewSealCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seal <object-id>",
		Short: "Seal a pending object",
		Long:  `Seal a pending object. Only useful to finish a build that was interrupted; sealing twice is a no-op.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := composite.ParseObjectID(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			return client.Seal(cmd.Context(), id)
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	var opts composite.DeleteOptions

	cmd := &cobra.Command{
		Use:   "delete <object-id>",
		Short: "Delete an object",
		Long: `Delete an object. An object still referenced by a live composite is kept
unless --force is given. With --deep, members that are no longer referenced
are deleted too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := composite.ParseObjectID(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			deleted, err := client.Delete(cmd.Context(), id, opts)
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is still referenced, kept\n", id)
				return nil
			}
			for _, d := range deleted {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "delete even if referenced")
	cmd.Flags().BoolVar(&opts.Deep, "deep", false, "also delete unreferenced members")
	return cmd
}

// NewPersistCommand creates the persist command
func NewPersistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "persist <object-id>",
		Short: "Write snapshots of an object and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := composite.ParseObjectID(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			return client.Persist(cmd.Context(), id)
		},
	}
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var opts composite.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sealed objects",
		Long:  `List sealed objects whose type tag matches --pattern, a glob unless --regex is set.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			docs, err := client.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tMEMBERS\tPERSISTENT")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", d.ID, d.TypeTag, d.MemberCount(), d.Persistent)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Pattern, "pattern", "", "type tag pattern (empty matches all)")
	cmd.Flags().BoolVar(&opts.Regex, "regex", false, "treat --pattern as a regular expression")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of objects (0 for no limit)")
	return cmd
}

// NewNameCommand creates the name command group
func NewNameCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "name",
		Short: "Manage object names",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put <name> <object-id>",
		Short: "Bind a name to a sealed object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := composite.ParseObjectID(args[1])
			if err != nil {
				return err
			}
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()
			return client.PutName(cmd.Context(), id, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print the object a name is bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()
			id, err := client.GetName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <name>",
		Short: "Remove a name binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()
			return client.DropName(cmd.Context(), args[0])
		},
	})

	return cmd
}
