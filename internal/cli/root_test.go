package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, nil, args...)
}

func executeWithInput(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	if in != nil {
		cmd.SetIn(in)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tree.db")
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"add", "move", "render", "reset", "events", "verify", "stress", "repl", "scenario"}, names)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "render", "--backend", "memory", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootCommand_InvalidBackend(t *testing.T) {
	_, err := execute(t, "render", "--backend", "postgres")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfg := filepath.Join(dir, "dcbtree.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend: sqlite\nsqlite:\n  path: "+db+"\n  table: my_events\n"), 0o644))

	_, err := execute(t, "add", "root.a", "--config", cfg)
	require.NoError(t, err)
	assert.FileExists(t, db)

	out, err := execute(t, "render", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "  a (1)")
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "dcbtree.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend: redis\nredis:\n  addr: 127.0.0.1:1\n"), 0o644))

	out, err := execute(t, "add", "root.a", "--config", cfg, "--backend", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "added node 'a' underneath 'root':")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "render", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
