package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Flags(t *testing.T) {
	url := rootCmd.PersistentFlags().Lookup("url")
	require.NotNil(t, url)
	assert.Equal(t, "http://localhost:8080", url.DefValue)

	token := rootCmd.PersistentFlags().ShorthandLookup("t")
	require.NotNil(t, token)
	assert.Equal(t, "token", token.Name)
}

func TestRootCommand_EnvOverridesDefaults(t *testing.T) {
	resetViper()
	t.Setenv("SHIPYARD_TOKEN", "sy_from_env")
	t.Setenv("SHIPYARD_URL", "http://shipyard.internal:8080")
	t.Setenv("SHIPYARD_GITHUB_TOKEN", "ghp_example")

	assert.Equal(t, "sy_from_env", viper.GetString("token"))
	assert.Equal(t, "http://shipyard.internal:8080", viper.GetString("url"))
	assert.Equal(t, "ghp_example", viper.GetString("github_token"))
}

func TestInitConfig_ReadsFile(t *testing.T) {
	resetViper()
	path := filepath.Join(t.TempDir(), "shipctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://from-file:9999\ntoken: sy_from_file\n"), 0o600))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	initConfig()

	assert.Equal(t, "http://from-file:9999", viper.GetString("url"))
	assert.Equal(t, "sy_from_file", viper.GetString("token"))
}

func TestInitConfig_EnvBeatsFile(t *testing.T) {
	resetViper()
	path := filepath.Join(t.TempDir(), "shipctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: sy_from_file\n"), 0o600))
	t.Setenv("SHIPYARD_TOKEN", "sy_from_env")

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	initConfig()

	assert.Equal(t, "sy_from_env", viper.GetString("token"))
}

func TestInitConfig_MissingFileIsIgnored(t *testing.T) {
	resetViper()
	cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { cfgFile = "" })

	assert.NotPanics(t, initConfig)
	assert.Empty(t, viper.GetString("token"))
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range []string{"submit", "status", "list", "delete", "artifacts", "analyze", "generate"} {
		assert.True(t, registered[name], "subcommand %q is not registered", name)
	}
}

func TestRootCommand_Help(t *testing.T) {
	resetViper()
	out := execute(t, "--help")

	assert.Contains(t, out, "SHIPYARD_TOKEN")
	assert.Contains(t, out, "shipctl submit")
}

func TestExecute_UnknownCommand(t *testing.T) {
	resetViper()
	rootCmd.SetArgs([]string{"launch"})

	assert.Error(t, Execute())
}

func TestPrintAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"api error", &APIError{StatusCode: 404, Message: "Job not found"}, "Get job failed (404): Job not found\n"},
		{"wrapped api error", errors.Join(errors.New("poll"), &APIError{StatusCode: 503, Message: "Queue unavailable"}), "Get job failed (503): Queue unavailable\n"},
		{"transport error", errors.New("connection refused"), "Get job failed: connection refused\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &cobra.Command{}
			c.SetOut(&out)

			printAPIError(c, "Get job", tt.err)

			assert.Equal(t, tt.want, out.String())
		})
	}
}
