package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shipctl",
	Short: "shipctl is a command line tool for the shipyard deployment pipeline",
	Long: `shipctl is the command-line interface for shipyard.

shipyard turns a machine-learning repository into a deployable project: it profiles
the repository, generates a Dockerfile, a serving app, CI workflows and Kubernetes
manifests, and can build, train, deploy and publish the result.

Common workflows:

  Submit a repository to the pipeline:
    shipctl submit https://github.com/acme/churn-model --wait

  Check a job:
    shipctl status <job-id>

  Download the generated artifacts:
    shipctl artifacts <job-id> --output artifacts.zip

  Profile or generate locally, without a server:
    shipctl analyze ./my-model
    shipctl generate ./my-model --out ./deploy

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    SHIPYARD_URL           API endpoint (default: http://localhost:8080)
    SHIPYARD_TOKEN         Client API key for authentication
    SHIPYARD_GITHUB_TOKEN  Token used by analyze and generate to clone private repositories`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initConfig layers the config file under SHIPYARD_* environment variables. A missing file
// is fine; flags and the environment are enough to talk to the service.
func initConfig() {
	viper.SetEnvPrefix("SHIPYARD")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".shipctl")
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case errors.As(err, &notFound):
	default:
		fmt.Fprintln(os.Stderr, "Ignoring config file:", err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shipctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "shipyard tracking service URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// newClient returns a client for the configured service, or prints a hint and
// returns nil when no API key is set.
func newClient(cmd *cobra.Command) *JobClient {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the SHIPYARD_TOKEN environment variable")
		return nil
	}
	return NewJobClient(viper.GetString("url"), token)
}

// printAPIError reports a failed call, showing the server's status code when there is one.
func printAPIError(cmd *cobra.Command, action string, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cmd.Printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", action, err)
}
