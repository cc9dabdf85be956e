package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersCoreSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	require.NotNil(t, cmd.Commands())
	for _, name := range []string{"verbose", "json", "log-file", "no-progress", "config", "env-file", "provider", "api-key"} {
		require.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	require.Equal(t, ".env", cmd.PersistentFlags().Lookup("env-file").DefValue)
	require.Equal(t, "false", cmd.PersistentFlags().Lookup("no-progress").DefValue)

	transcribe, _, err := cmd.Find([]string{"transcribe"})
	require.NoError(t, err)
	require.NotNil(t, transcribe.Flags().ShorthandLookup("o"))
	for _, name := range []string{"note", "no-vad", "no-summary", "force", "allow-partial", "db-path", "context"} {
		require.NotNil(t, transcribe.Flags().Lookup(name), name)
	}

	require.Equal(t, "Send the whole file in one request without splitting", transcribe.Flags().Lookup("no-vad").Usage)

	watch, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)
	require.Equal(t, transcribe.Flags().Lookup("no-vad").Usage, watch.Flags().Lookup("no-vad").Usage)
	require.NotNil(t, watch.Flags().Lookup("scan-existing"))
	require.NotNil(t, watch.Flags().Lookup("cleanup"))
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "transcribe")
	require.Contains(t, out.String(), "watch")
	require.Contains(t, out.String(), "ledger")
	require.Contains(t, out.String(), "config")
	require.Contains(t, out.String(), "version")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "transcribe", args: []string{"transcribe", "--help"}, contains: "Transcribe an audio file"},
		{name: "watch", args: []string{"watch", "--help"}, contains: "transcribed one at a time"},
		{name: "ledger", args: []string{"ledger", "--help"}, contains: "Inspect and maintain the processing ledger"},
		{name: "ledger stats", args: []string{"ledger", "stats", "--help"}, contains: "Show totals"},
		{name: "config show", args: []string{"config", "show", "--help"}, contains: "API keys masked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}
