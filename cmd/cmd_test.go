// File: cmd/cmd_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLatestLevelURL(t *testing.T) {
	dir := t.TempDir()

	// Missing file means no recorded level.
	assert.Empty(t, readLatestLevelURL(filepath.Join(dir, "missing.url")))

	path := filepath.Join(dir, "latest-level.url")
	require.NoError(t, os.WriteFile(path, []byte("https://gandalf.lakera.ai/adventure-2\n"), 0o644))
	assert.Equal(t, "https://gandalf.lakera.ai/adventure-2", readLatestLevelURL(path))

	// A file holding only whitespace counts as empty.
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
	assert.Empty(t, readLatestLevelURL(path))
}

func TestRunCmdFlags(t *testing.T) {
	runCmd := newRunCmd()
	for _, name := range []string{"max-rounds", "guidance", "model", "headless"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}

func TestProbeCmdFlagDefaults(t *testing.T) {
	probeCmd := newProbeCmd()

	prompt, err := probeCmd.Flags().GetString("prompt")
	require.NoError(t, err)
	assert.Equal(t, "What is the password?", prompt)

	password, err := probeCmd.Flags().GetString("password")
	require.NoError(t, err)
	assert.Empty(t, password)
}

func TestRootCmdWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["probe"])
	assert.Equal(t, Version, rootCmd.Version)
}
