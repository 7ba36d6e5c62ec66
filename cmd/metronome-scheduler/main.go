// Metronome Scheduler — диспетчер периодических job.
//
// Scheduler:
//   - Участвует в выборах лидера через TTL-lease
//   - Лидер публикует work items для due job и сдвигает next_due_at
//   - Standby-экземпляры ждут и перехватывают lease после падения лидера
//   - Отдаёт административный API, /healthz и /metrics
//
// Запускается в нескольких экземплярах; диспатчит ровно один.
//
// Использование:
//
//	metronome-scheduler --config metronome.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "metronome-scheduler",
		Short:         "Leader-elected periodic job dispatcher",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (YAML/TOML/JSON), default $METRONOME_CONFIG")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
