package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/Herald/internal/delivery"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/telemetry"
)

// deliverThread публикует посты треда по порядку, каждый ответом на предыдущий.
//
// Уже доставленные посты (external_id сохранён) пропускаются:
// после падения инстанса тред продолжается с первого недоставленного поста.
// ID каждого поста сохраняется сразу после доставки, и claim продлевается:
// длинный тред не должен выглядеть зависшим для reaper.
//
// Возвращает ID первого поста — канонический ID треда.
func (s *Scheduler) deliverThread(ctx context.Context, item *domain.Item) (string, error) {
	if len(item.Posts) == 0 {
		return "", delivery.Validation("%v", ErrEmptyThread)
	}

	sort.SliceStable(item.Posts, func(i, j int) bool {
		return item.Posts[i].Position < item.Posts[j].Position
	})

	token, err := s.credentials.Credential(ctx, item.AccountID)
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	logger := telemetry.FromContext(ctx)

	var firstID, replyTo string
	for i := range item.Posts {
		post := &item.Posts[i]

		if post.IsDelivered() {
			logger.Debug("thread post already delivered, skipping",
				"position", post.Position,
				"external_id", post.ExternalID,
			)
		} else {
			mediaIDs, err := s.uploadMedia(ctx, item.ID, token, post.Content.Media)
			if err != nil {
				return "", fmt.Errorf("thread post %d: %w", post.Position, err)
			}

			externalID, err := s.client.Publish(ctx, token, delivery.Post{
				Text:      post.Content.Text,
				MediaIDs:  mediaIDs,
				ReplyToID: replyTo,
			})
			if err != nil {
				return "", fmt.Errorf("thread post %d: %w", post.Position, err)
			}
			if externalID == "" {
				return "", fmt.Errorf("thread post %d: %w", post.Position, ErrEmptyExternalID)
			}

			post.ExternalID = externalID
			if err := s.store.SaveThreadPost(ctx, item.ID, post.Position, externalID); err != nil {
				// Пост опубликован; без сохранённого ID повторная попытка его продублирует.
				logger.Error("failed to save thread post external id",
					"position", post.Position,
					"external_id", externalID,
					"error", err,
				)
			}

			if err := s.touch(ctx, item.ID); err != nil {
				return "", fmt.Errorf("thread post %d: %w", post.Position, err)
			}
		}

		if firstID == "" {
			firstID = post.ExternalID
		}
		replyTo = post.ExternalID
	}

	return firstID, nil
}
