package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts [job_id]",
	Short: "List or download the artifacts stored for a job",
	Long: `Without --output, list the files the worker uploaded for the job.
With --output, download all of them as a zip archive.

Example:
  shipctl artifacts <job-id>
  shipctl artifacts <job-id> --output deploy.zip`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]
		output, _ := cmd.Flags().GetString("output")

		client := newClient(cmd)
		if client == nil {
			return
		}

		if output == "" {
			files, err := client.ListArtifacts(jobID)
			if err != nil {
				printAPIError(cmd, "List", err)
				return
			}
			if len(files) == 0 {
				cmd.Println("No artifacts stored for this job.")
				return
			}
			for _, f := range files {
				cmd.Println(f)
			}
			return
		}

		f, err := os.Create(output)
		if err != nil {
			cmd.Printf("Failed to create %s: %v\n", output, err)
			return
		}
		n, err := client.DownloadArtifacts(jobID, f)
		closeErr := f.Close()
		if err != nil {
			os.Remove(output)
			printAPIError(cmd, "Download", err)
			return
		}
		if closeErr != nil {
			cmd.Printf("Failed to write %s: %v\n", output, closeErr)
			return
		}
		cmd.Printf("✓ Wrote %s (%d bytes)\n", output, n)
	},
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.Flags().StringP("output", "o", "", "Write a zip of all artifacts to this file")
}
