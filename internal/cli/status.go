package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду status.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler instance status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFn().Status(cmd.Context())
			if err != nil {
				return err
			}

			leader := "-"
			leaseExpires := ""
			if st.Leader != nil {
				leader = holder(st.Leader.OwnerToken)
				leaseExpires = st.Leader.ExpiresAt
			}
			if st.LeaderError != "" {
				leader = "unknown (" + st.LeaderError + ")"
			}

			outputFn().Fields(st,
				[2]string{"Instance", st.InstanceID},
				[2]string{"State", st.State},
				[2]string{"Is leader", strconv.FormatBool(st.IsLeader)},
				[2]string{"Leader", leader},
				[2]string{"Lease expires", leaseExpires},
				[2]string{"Lease deadline", st.LeaseDeadline},
				[2]string{"Jobs", strconv.Itoa(st.Jobs)},
				[2]string{"Ticks", strconv.FormatUint(st.Ticks, 10)},
				[2]string{"Last tick", st.LastTickAt},
				[2]string{"Dispatched", strconv.FormatUint(st.Dispatched, 10)},
				[2]string{"Failures", strconv.FormatUint(st.Failures, 10)},
			)
			return nil
		},
	}
}

// NewHealthCmd создаёт команду health.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend health of an instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := clientFn().Health(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(h.Checks))
			for _, name := range sortedKeys(h.Checks) {
				rows = append(rows, []string{name, h.Checks[name]})
			}
			outputFn().Print([]string{"BACKEND", "STATUS"}, rows, h)

			if h.Status != "ok" {
				return errUnhealthy
			}
			return nil
		},
	}
}
