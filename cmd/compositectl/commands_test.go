package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/api"
	"github.com/tendant/simple-composite/pkg/composite/metastore/memory"
	snapmemory "github.com/tendant/simple-composite/pkg/composite/snapshot/memory"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := composite.New(
		composite.WithStore(memory.New()),
		composite.WithSnapshotStore(snapmemory.New()),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewObjectHandler(svc).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustID(t *testing.T, out string) composite.ObjectID {
	t.Helper()
	id, err := composite.ParseObjectID(strings.TrimSpace(out))
	require.NoError(t, err, out)
	return id
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    composite.Value
		wantErr bool
	}{
		{"hello", composite.StringValue("hello"), false},
		{"int:42", composite.IntValue(42), false},
		{"bool:true", composite.BoolValue(true), false},
		{"str:int:1", composite.StringValue("int:1"), false},
		{"ref:o0000000000000010", composite.RefValue(16), false},
		{"http://x", composite.StringValue("http://x"), false},
		{"int:x", composite.Value{}, true},
		{"bool:maybe", composite.Value{}, true},
		{"ref:nope", composite.Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseValue(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"label=logs", "shards=int:3"})
	require.NoError(t, err)
	assert.Equal(t, composite.StringValue("logs"), fields["label"])
	assert.Equal(t, composite.IntValue(3), fields["shards"])

	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
}

func TestCommands_EndToEnd(t *testing.T) {
	srv := newServer(t)

	out, err := execute(t, srv, "scalar", "int:1")
	require.NoError(t, err)
	a := mustID(t, out)
	out, err = execute(t, srv, "scalar", "two")
	require.NoError(t, err)
	b := mustID(t, out)

	out, err = execute(t, srv, "parallel-stream", a.String(), b.String(), "--field", "label=logs")
	require.NoError(t, err)
	ps := mustID(t, out)

	out, err = execute(t, srv, "get", ps.String())
	require.NoError(t, err)
	assert.Contains(t, out, `"type_tag": "parallel_stream"`)
	assert.Contains(t, out, a.String())

	out, err = execute(t, srv, "list", "--pattern", "scalar")
	require.NoError(t, err)
	assert.Contains(t, out, a.String())
	assert.NotContains(t, out, ps.String())

	_, err = execute(t, srv, "persist", ps.String())
	require.NoError(t, err)
	out, err = execute(t, srv, "get", "--snapshot", ps.String())
	require.NoError(t, err)
	assert.Contains(t, out, b.String())

	_, err = execute(t, srv, "name", "put", "latest", ps.String())
	require.NoError(t, err)
	out, err = execute(t, srv, "name", "get", "latest")
	require.NoError(t, err)
	assert.Equal(t, ps, mustID(t, out))
	_, err = execute(t, srv, "name", "drop", "latest")
	require.NoError(t, err)

	out, err = execute(t, srv, "delete", a.String())
	require.NoError(t, err)
	assert.Contains(t, out, "still referenced")

	out, err = execute(t, srv, "delete", "--deep", ps.String())
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 3)
}

func TestCommands_Errors(t *testing.T) {
	srv := newServer(t)

	_, err := execute(t, srv, "parallel-stream", "o00000000000000ff")
	assert.ErrorIs(t, err, composite.ErrDanglingReference)

	_, err = execute(t, srv, "get", "garbage")
	assert.ErrorIs(t, err, composite.ErrInvalidObjectID)

	out, err := execute(t, srv, "scalar", "1")
	require.NoError(t, err)
	a := mustID(t, out)
	_, err = execute(t, srv, "parallel-stream", "--reject-duplicates", a.String(), a.String())
	assert.ErrorIs(t, err, composite.ErrDuplicateMember)

	_, err = execute(t, srv, "--session", "nope", "scalar", "1")
	assert.Error(t, err)
}
