// Metronome Worker — эталонный потребитель work items.
//
// Worker:
//   - Читает work items из RabbitMQ или списков Redis
//   - Маршрутизирует по имени job: webhook или логирование
//   - Повторяет временные ошибки, poison-сообщения уводит в DLQ
//   - Отдаёт /healthz и /metrics
//
// Использование:
//
//	metronome-worker --config metronome.yaml
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
		Use:           "metronome-worker",
		Short:         "Reference consumer of Metronome work items",
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
