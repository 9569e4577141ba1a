package cmd

import (
	"time"

	"shipyard/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit [repo_url]",
	Short: "Queue a repository for the deployment pipeline",
	Long: `Create a job for a git repository. The worker clones it, generates the deployment
artifacts and runs the stages enabled on the worker.

Example:
  shipctl submit https://github.com/acme/churn-model
  shipctl submit git@github.com:acme/churn-model.git --wait --interval 10s`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		wait, _ := flags.GetBool("wait")
		interval, _ := flags.GetDuration("interval")
		timeout, _ := flags.GetDuration("timeout")

		client := newClient(cmd)
		if client == nil {
			return
		}

		job, err := client.CreateJob(args[0])
		if err != nil {
			printAPIError(cmd, "Submit", err)
			return
		}
		cmd.Printf("✓ Job submitted!\nJob ID: %s\n", job.ID)

		if !wait {
			return
		}

		final, err := waitForJob(cmd, client, job.ID, interval, timeout)
		if err != nil {
			printAPIError(cmd, "Wait", err)
			return
		}
		printStatus(cmd, *final)
	},
}

// waitForJob polls until the job reaches a terminal state, printing each state change.
func waitForJob(cmd *cobra.Command, client *JobClient, jobID string, interval, timeout time.Duration) (*api.JobResponse, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	last := ""
	for {
		job, err := client.GetJob(jobID)
		if err != nil {
			return nil, err
		}
		if job.Status != last {
			cmd.Printf("%s %s\n", statusIcon(job.Status), job.Status)
			last = job.Status
		}
		if api.TerminalStatus(job.Status) {
			return job, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			cmd.Printf("Stopped waiting after %s; the job is still %s\n", timeout, job.Status)
			return job, nil
		}
		time.Sleep(interval)
	}
}

func init() {
	flags := submitCmd.Flags()
	flags.BoolP("wait", "w", false, "Wait until the job completes or fails")
	flags.Duration("interval", 5*time.Second, "Polling interval while waiting")
	flags.Duration("timeout", 0, "Give up waiting after this long (0 waits forever)")

	rootCmd.AddCommand(submitCmd)
}
