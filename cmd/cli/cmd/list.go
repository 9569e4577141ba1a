package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your most recent jobs",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		limit, _ := cmd.Flags().GetInt("limit")
		jobs, err := client.ListJobs(limit)
		if err != nil {
			printAPIError(cmd, "List", err)
			return
		}

		if len(jobs) == 0 {
			cmd.Println("No jobs found.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tSTATUS\tREPOSITORY\tCREATED\tERROR")
		for _, j := range jobs {
			errMsg := j.ErrorMessage
			// Truncate long error messages for the table view
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				j.ID,
				j.Status,
				j.RepoURL,
				j.CreatedAt.Format(time.RFC3339),
				errMsg,
			)
		}
		w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [job_id]",
	Short: "Delete a job record",
	Long:  `Remove a job from the tracking service. A worker already processing the job is not stopped, and its later status reports are dropped.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}
		if err := client.DeleteJob(args[0]); err != nil {
			printAPIError(cmd, "Delete", err)
			return
		}
		cmd.Printf("✓ Job %s deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)

	listCmd.Flags().IntP("limit", "l", 20, "Number of jobs to show (1-200)")
}
