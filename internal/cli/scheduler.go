package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTickCmd создаёт команду одного прохода планировщика.
func NewTickCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass (stale-claim sweep + due items)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}
			out := outputFn()

			stats := svc.Ticker.Tick(cmd.Context())

			headers := []string{"REVERTED", "DUE", "POSTED", "RETRIED", "FAILED", "ALREADY_POSTED", "SKIPPED", "CLAIM_LOST", "ERRORS"}
			rows := [][]string{{
				strconv.FormatInt(stats.Reverted, 10),
				strconv.Itoa(stats.Due),
				strconv.Itoa(stats.Posted),
				strconv.Itoa(stats.Retried),
				strconv.Itoa(stats.Failed),
				strconv.Itoa(stats.AlreadyPosted),
				strconv.Itoa(stats.Skipped),
				strconv.Itoa(stats.ClaimLost),
				strconv.Itoa(stats.Errors),
			}}
			return out.Print(headers, rows, stats)
		},
	}
}

// NewReapCmd создаёт команду возврата зависших claim.
func NewReapCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Revert items stuck in PROCESSING back to SCHEDULED",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}
			out := outputFn()

			n, err := svc.Reaper.Reap(cmd.Context())
			if err != nil {
				return err
			}

			if out.jsonMode {
				return out.JSON(map[string]int64{"reverted": n})
			}
			out.Success(fmt.Sprintf("Reverted %d stale claim(s)", n))
			return nil
		},
	}
}

// NewMigrateCmd создаёт команду применения миграций.
func NewMigrateCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}

			if err := svc.Migrate(cmd.Context()); err != nil {
				return err
			}

			outputFn().Success("Migrations applied")
			return nil
		},
	}
}
