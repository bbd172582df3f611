// Herald CLI — операторская утилита планировщика публикаций.
//
// Использование:
//
//	herald [--json] <command> [flags]
//
// Команды:
//
//	tick      Один проход планировщика
//	reap      Возврат зависших claim
//	allocate  Распределение очереди по слотам
//	slots     Предпросмотр слотов
//	item      Состояние публикации
//	policy    Политики очереди
//	migrate   Миграции схемы
//
// Конфигурация берётся из тех же переменных окружения, что и у herald-scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/app"
	"github.com/shaiso/Herald/internal/cli"
	"github.com/shaiso/Herald/internal/config"
	"github.com/shaiso/Herald/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "herald",
		Short:         "Herald CLI — content scheduling operations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	var a *app.App
	defer func() {
		if a != nil {
			a.Close()
		}
	}()

	servicesFn := func(ctx context.Context) (*cli.Services, error) {
		if a == nil {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(os.Stderr, level, "text")

			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			if a, err = app.Build(ctx, cfg, logger); err != nil {
				return nil, err
			}
		}

		return &cli.Services{
			Ticker:    a.Scheduler,
			Reaper:    a.Scheduler.Reaper(),
			Allocator: a.Queue,
			Items:     a.Items,
			Policies:  a.Policies,
			Migrate:   a.Migrate,
		}, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTickCmd(servicesFn, outputFn),
		cli.NewReapCmd(servicesFn, outputFn),
		cli.NewAllocateCmd(servicesFn, outputFn),
		cli.NewSlotsCmd(servicesFn, outputFn),
		cli.NewItemCmd(servicesFn, outputFn),
		cli.NewPolicyCmd(servicesFn, outputFn),
		cli.NewMigrateCmd(servicesFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if a != nil {
			a.Close()
		}
		os.Exit(1)
	}
}
