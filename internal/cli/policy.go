package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/domain"
)

// NewPolicyCmd создаёт группу команд для политик очереди.
func NewPolicyCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage queue policies",
	}

	cmd.AddCommand(
		newPolicyShowCmd(servicesFn, outputFn),
		newPolicySetCmd(servicesFn, outputFn),
	)

	return cmd
}

func newPolicyShowCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective queue policy of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(accountID)
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}
			out := outputFn()

			p, err := svc.Policies.GetQueuePolicy(cmd.Context(), id)
			if err != nil {
				return err
			}

			source := "default"
			if p.AccountID != nil {
				source = "account"
			}

			headers := []string{"SOURCE", "ENABLED", "TIMES", "TIMEZONE", "MIN_INTERVAL", "MAX_PER_DAY", "SKIP_WEEKENDS"}
			rows := [][]string{{
				source,
				strconv.FormatBool(p.Enabled),
				strings.Join(p.Times, ","),
				p.Timezone,
				strconv.Itoa(p.MinIntervalMinutes) + "m",
				strconv.Itoa(p.MaxPostsPerDay),
				strconv.FormatBool(p.SkipWeekends),
			}}
			return out.Print(headers, rows, p)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.MarkFlagRequired("account")

	return cmd
}

func newPolicySetCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	var (
		accountID    string
		times        []string
		timezone     string
		minInterval  int
		maxPerDay    int
		skipWeekends bool
		disabled     bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a queue policy (without --account sets the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &domain.QueuePolicy{
				Enabled:            !disabled,
				Times:              times,
				Timezone:           timezone,
				MinIntervalMinutes: minInterval,
				MaxPostsPerDay:     maxPerDay,
				SkipWeekends:       skipWeekends,
			}
			if accountID != "" {
				id, err := uuid.Parse(accountID)
				if err != nil {
					return fmt.Errorf("invalid account id: %w", err)
				}
				p.AccountID = &id
			}
			if err := p.Validate(); err != nil {
				return err
			}

			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}

			if err := svc.Policies.Upsert(cmd.Context(), p); err != nil {
				return err
			}

			target := "default"
			if p.AccountID != nil {
				target = p.AccountID.String()
			}
			outputFn().Success("Queue policy saved for " + target)
			return nil
		},
	}

	def := domain.DefaultQueuePolicy()
	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (empty for the default policy)")
	cmd.Flags().StringSliceVar(&times, "times", def.Times, "Daily posting times, HH:MM")
	cmd.Flags().StringVar(&timezone, "timezone", def.Timezone, "IANA timezone of --times")
	cmd.Flags().IntVar(&minInterval, "min-interval", def.MinIntervalMinutes, "Minimum minutes between slots")
	cmd.Flags().IntVar(&maxPerDay, "max-per-day", def.MaxPostsPerDay, "Maximum slots per day (0 = unlimited)")
	cmd.Flags().BoolVar(&skipWeekends, "skip-weekends", def.SkipWeekends, "Skip Saturday and Sunday")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Disable queue allocation")

	return cmd
}
