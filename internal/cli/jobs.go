package cli

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("instance is unhealthy")

// NewJobsCmd создаёт группу команд для просмотра job.
func NewJobsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect scheduled jobs",
	}

	cmd.AddCommand(
		newJobsListCmd(clientFn, outputFn),
		newJobsShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var enabledOnly, disabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs with their next due time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enabledOnly && disabledOnly {
				return errors.New("--enabled and --disabled are mutually exclusive")
			}

			var filter *bool
			switch {
			case enabledOnly:
				filter = new(bool)
				*filter = true
			case disabledOnly:
				filter = new(bool)
			}

			jobs, err := clientFn().ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CADENCE", "ENABLED", "NEXT_DUE", "LAST_RUN", "LAST_OUTCOME"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.Name, j.Cadence, strconv.FormatBool(j.Enabled),
					j.NextDueAt, dash(j.LastRunAt), dash(j.LastOutcome),
				}
			}

			outputFn().Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled jobs")
	cmd.Flags().BoolVar(&disabledOnly, "disabled", false, "Only disabled jobs")

	return cmd
}

func newJobsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := clientFn().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			outputFn().Fields(j,
				[2]string{"Name", j.Name},
				[2]string{"Cadence", j.Cadence},
				[2]string{"Timezone", j.Timezone},
				[2]string{"Topic", j.Topic},
				[2]string{"Enabled", strconv.FormatBool(j.Enabled)},
				[2]string{"Disabled reason", j.DisabledReason},
				[2]string{"Next due", j.NextDueAt},
				[2]string{"Last run", j.LastRunAt},
				[2]string{"Last attempt", j.LastAttemptAt},
				[2]string{"Last dispatch", j.LastDispatchID},
				[2]string{"Last outcome", j.LastOutcome},
				[2]string{"Last error", j.LastError},
				[2]string{"Payload", string(j.Payload)},
			)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// holder — instance id из токена владельца "instance:uuid".
func holder(token string) string {
	if i := strings.LastIndexByte(token, ':'); i > 0 {
		return token[:i]
	}
	return token
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
