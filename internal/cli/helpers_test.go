package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/testutil"
)

// seededDir returns a directory holding events.db with the fixture events
// and resolution.db with a zero-width parametrization for "nominal".
func seededDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	testutil.SeedEvents(t, s)
	require.NoError(t, s.Close())

	testutil.WriteParametrization(t, filepath.Join(dir, "resolution.db"), "resolution",
		testutil.UniformResolution("nominal", 0)...)
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// commandWithBuffers returns cmd wired to fresh output buffers.
func commandWithBuffers(cmd *cobra.Command) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}
