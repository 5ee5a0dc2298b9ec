package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	expected := []string{"router", "submit", "artifact", "run", "status"}

	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Contains(t, rootCmd.Version, "1.2.3")
	assert.Contains(t, rootCmd.Version, "abc123")
}

func TestArtifactSubcommands(t *testing.T) {
	expected := []string{"put", "get", "exists", "delete"}

	registered := make(map[string]bool)
	for _, cmd := range artifactCmd.Commands() {
		registered[cmd.Name()] = true
	}

	for _, name := range expected {
		require.True(t, registered[name], "artifact subcommand %q should be registered", name)
	}
}
