package cmd

import (
	"fmt"
	"time"

	"shipyard/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long:  `Retrieve the current state of a pipeline job (queued, analyzing, generating, building, training, deploying, completed, failed) together with the repository profile and the locations of everything the pipeline produced.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		if client == nil {
			return
		}

		job, err := client.GetJob(args[0])
		if err != nil {
			printAPIError(cmd, "Request", err)
			return
		}
		printStatus(cmd, *job)
	},
}

func printStatus(cmd *cobra.Command, job api.JobResponse) {
	// Header with status icon
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	field := func(label, value string) {
		if value != "" {
			cmd.Printf("%s%-13s%s %s\n", colorDim, label+":", colorReset, value)
		}
	}

	field("ID", job.ID)
	field("Repository", job.RepoURL)
	field("Status", colorizeStatus(job.Status))

	if job.Status == api.StatusFailed && job.ErrorMessage != "" {
		field("Error", colorRed+job.ErrorMessage+colorReset)
	}

	if job.SourceFiles > 0 || job.Notebooks > 0 || job.Frameworks != "" {
		field("Profile", fmt.Sprintf("%d source files, %d notebooks", job.SourceFiles, job.Notebooks))
		field("Frameworks", job.Frameworks)
	}

	field("Image", job.Image)
	field("Endpoint", job.APIEndpoint)
	field("Storage", job.StorageLocator)
	field("Published", job.RepositoryURL)
	field("GitHub CI", job.GitHubActionsURL)
	field("GitLab CI", job.GitLabCIURL)
	field("Jenkinsfile", job.JenkinsfileURL)

	// Timestamps with relative time
	cmd.Printf("%sCreated:%s      %s\n", colorDim, colorReset, formatTimeWithRelative(&job.CreatedAt))

	// Duration if both times available
	if job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(job.CreatedAt)
		cmd.Printf("%sFinished:%s     %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusColor(status string) string {
	switch status {
	case api.StatusCompleted:
		return colorGreen
	case api.StatusFailed:
		return colorRed
	case api.StatusQueued:
		return colorCyan
	default:
		return colorYellow
	}
}

func statusIcon(status string) string {
	switch status {
	case api.StatusCompleted:
		return colorGreen + "✓" + colorReset
	case api.StatusFailed:
		return colorRed + "✗" + colorReset
	case api.StatusQueued:
		return colorCyan + "◯" + colorReset
	case "":
		return "•"
	default:
		return colorYellow + "⏳" + colorReset
	}
}

func colorizeStatus(status string) string {
	if status == "" {
		return "-"
	}
	return statusIcon(status) + " " + statusColor(status) + status + colorReset
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
