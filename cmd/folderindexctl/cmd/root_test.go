package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"init", "index", "search", "info", "watch", "logs", "doctor"} {
		assert.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestNewIndexCmd_RequiresAtMostOnePathArg(t *testing.T) {
	cmd := newIndexCmd()
	assert.NoError(t, cmd.Args(cmd, []string{"."}))
	assert.Error(t, cmd.Args(cmd, []string{".", "extra"}))
}

func TestNewSearchCmd_RequiresPathAndQuery(t *testing.T) {
	cmd := newSearchCmd()
	assert.Error(t, cmd.Args(cmd, []string{"."}))
	assert.NoError(t, cmd.Args(cmd, []string{".", "some", "query"}))
}
