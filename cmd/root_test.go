package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"ingest", "batch", "detect", "ask", "status", "reports", "rebuild", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ddr-engine", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_RequiresArgs(t *testing.T) {
	err := ingestCmd.Args(ingestCmd, nil)
	require.Error(t, err)
	assert.NoError(t, ingestCmd.Args(ingestCmd, []string{"extraction.json"}))
}

func TestBatchCommand_Flags(t *testing.T) {
	dirFlag := batchCmd.Flags().Lookup("dir")
	require.NotNil(t, dirFlag, "batch command should have --dir flag")
	assert.Equal(t, ".", dirFlag.DefValue)

	limitFlag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag, "batch command should have --limit flag")
	assert.Equal(t, "0", limitFlag.DefValue)
}

func TestDetectCommand_Flags(t *testing.T) {
	flag := detectCmd.Flags().Lookup("well")
	require.NotNil(t, flag, "detect command should have --well flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
