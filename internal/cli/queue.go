package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/queue"
)

// NewAllocateCmd создаёт команду распределения очереди.
func NewAllocateCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	var accountID string
	var all bool

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Assign queued items to time slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (accountID != "") {
				return fmt.Errorf("exactly one of --account or --all is required")
			}

			var id uuid.UUID
			if !all {
				var err error
				if id, err = uuid.Parse(accountID); err != nil {
					return fmt.Errorf("invalid account id: %w", err)
				}
			}

			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}
			out := outputFn()

			var results []queue.Result
			if all {
				summary, err := svc.Allocator.AllocateAll(cmd.Context())
				if err != nil {
					return err
				}
				results = summary.Results
			} else {
				res, err := svc.Allocator.AllocateAccount(cmd.Context(), id)
				if err != nil && !errors.Is(err, queue.ErrPolicyDisabled) {
					return err
				}
				if err != nil {
					out.Success("Queue policy is disabled for this account")
				}
				results = []queue.Result{res}
			}

			headers := []string{"ACCOUNT_ID", "QUEUED", "ASSIGNED", "OVERFLOW", "CONFLICTS"}
			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = []string{
					r.AccountID.String(),
					strconv.Itoa(r.Queued),
					strconv.Itoa(r.Assigned),
					strconv.Itoa(r.Overflow),
					strconv.Itoa(r.Conflicts),
				}
			}
			return out.Print(headers, rows, results)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().BoolVar(&all, "all", false, "Allocate every account with queued items")

	return cmd
}

// NewSlotsCmd создаёт команду предпросмотра слотов без записи.
func NewSlotsCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Preview free slots and the allocation plan (dry run)",
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

			preview, err := svc.Allocator.Preview(cmd.Context(), id)
			if err != nil {
				return err
			}

			assigned := make(map[int]string, len(preview.Plan.Assignments))
			for i, a := range preview.Plan.Assignments {
				assigned[i] = a.ItemID.String()
			}

			loc := preview.Policy.Location()
			headers := []string{"#", "SLOT", "ITEM_ID"}
			rows := make([][]string, len(preview.Slots))
			for i, slot := range preview.Slots {
				rows[i] = []string{strconv.Itoa(i + 1), formatTime(slot, loc), assigned[i]}
			}

			if err := out.Print(headers, rows, preview); err != nil {
				return err
			}
			if !out.jsonMode && preview.Plan.Overflow > 0 {
				out.Success(fmt.Sprintf("%d item(s) will stay queued", preview.Plan.Overflow))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.MarkFlagRequired("account")

	return cmd
}
