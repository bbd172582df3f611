package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewItemCmd создаёт команду просмотра публикации.
func NewItemCmd(servicesFn ServicesFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "item ITEM_ID",
		Short: "Show a scheduled item and its delivery state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id: %w", err)
			}

			svc, err := servicesFn(cmd.Context())
			if err != nil {
				return err
			}
			out := outputFn()

			item, err := svc.Items.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			if out.jsonMode {
				return out.JSON(item)
			}

			nextRetry := ""
			if item.NextRetryAt != nil {
				nextRetry = formatTime(*item.NextRetryAt, nil)
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"id", item.ID.String()},
				{"account_id", item.AccountID.String()},
				{"kind", string(item.Kind)},
				{"status", string(item.Status)},
				{"scheduled_at", formatTime(item.ScheduledAt, nil)},
				{"external_id", item.ExternalID},
				{"retries", fmt.Sprintf("%d/%d", item.RetryCount, item.MaxRetries)},
				{"next_retry_at", nextRetry},
				{"last_error", item.LastError},
			}
			if err := out.Table(headers, rows); err != nil {
				return err
			}

			if len(item.Posts) == 0 {
				return nil
			}

			fmt.Fprintln(out.w)
			postRows := make([][]string, len(item.Posts))
			for i, p := range item.Posts {
				postRows[i] = []string{strconv.Itoa(p.Position), p.ExternalID, strconv.Itoa(len(p.Content.Media))}
			}
			return out.Table([]string{"POSITION", "EXTERNAL_ID", "MEDIA"}, postRows)
		},
	}
}
