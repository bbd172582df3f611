package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Herald/internal/credential"
	"github.com/shaiso/Herald/internal/delivery"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/notify"
)

var (
	testAccountID = uuid.New()
	testOwnerID   = uuid.New()
	t0            = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPost(scheduledAt time.Time) domain.Item {
	return domain.Item{
		ID:          uuid.New(),
		AccountID:   testAccountID,
		OwnerID:     testOwnerID,
		Kind:        domain.ItemKindPost,
		Content:     domain.Content{Text: "hello"},
		ScheduledAt: scheduledAt,
		Status:      domain.ItemStatusScheduled,
		MaxRetries:  domain.DefaultMaxRetries,
		CreatedAt:   scheduledAt.Add(-time.Hour),
		UpdatedAt:   scheduledAt.Add(-time.Hour),
	}
}

func newThread(scheduledAt time.Time, texts ...string) domain.Item {
	item := newPost(scheduledAt)
	item.Kind = domain.ItemKindThread
	item.Content = domain.Content{}
	for i, text := range texts {
		item.Posts = append(item.Posts, domain.ThreadPost{Position: i, Content: domain.Content{Text: text}})
	}
	return item
}

type testEnv struct {
	store    *memStore
	client   *fakeClient
	notifier *recordingNotifier
	clock    *clock
	sched    *Scheduler
}

func newTestEnv(items ...domain.Item) *testEnv {
	env := &testEnv{
		store:    newMemStore(items...),
		client:   &fakeClient{},
		notifier: &recordingNotifier{},
		clock:    newClock(t0),
	}
	env.sched = env.newScheduler()
	return env
}

func (e *testEnv) newScheduler() *Scheduler {
	return New(Config{
		Store:       e.store,
		Client:      e.client,
		Credentials: credential.StaticProvider{testAccountID: "token"},
		Media:       mapLoader{"a.png": []byte("a"), "b.jpg": []byte("b")},
		Notifier:    e.notifier,
		Logger:      testLogger(),
		Now:         e.clock.Now,
	})
}

// replica — второй инстанс на том же хранилище и часах, со своим клиентом.
func (e *testEnv) replica() *testEnv {
	r := &testEnv{
		store:    e.store,
		client:   &fakeClient{},
		notifier: &recordingNotifier{},
		clock:    e.clock,
	}
	r.sched = r.newScheduler()
	return r
}

// --- Backoff ---

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 60 * time.Second},
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{5, 1920 * time.Second},
		{6, time.Hour},
		{100, time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffPolicy_Custom(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(3))
}

// --- Tick ---

func TestTick_PostsDueItem(t *testing.T) {
	item := newPost(t0.Add(-time.Minute))
	env := newTestEnv(item)
	env.client.publish = func(int, delivery.Post) (string, error) { return "ext-1", nil }

	stats := env.sched.Tick(context.Background())

	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Posted)

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusPosted, got.Status)
	assert.Equal(t, "ext-1", got.ExternalID)
	assert.Empty(t, got.LastError)
	assert.Equal(t, []notify.Outcome{notify.OutcomePosted}, env.notifier.outcomes())
}

func TestTick_SkipsFutureAndNonScheduled(t *testing.T) {
	future := newPost(t0.Add(time.Minute))
	draft := newPost(t0.Add(-time.Minute))
	draft.Status = domain.ItemStatusDraft
	queued := newPost(t0.Add(-time.Minute))
	queued.Status = domain.ItemStatusQueued

	env := newTestEnv(future, draft, queued)

	stats := env.sched.Tick(context.Background())

	assert.Zero(t, stats.Due)
	assert.Empty(t, env.client.calls())
	assert.Equal(t, domain.ItemStatusScheduled, env.store.get(future.ID).Status)
}

func TestTick_TransientFailureSchedulesRetry(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.client.publish = func(int, delivery.Post) (string, error) {
		return "", delivery.Transient("status 503")
	}

	stats := env.sched.Tick(context.Background())
	require.Equal(t, 1, stats.Retried)

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusScheduled, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "503")
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, t0.Add(60*time.Second), *got.NextRetryAt)
	assert.Empty(t, got.ExternalID)
	assert.Equal(t, []notify.Outcome{notify.OutcomeRetryScheduled}, env.notifier.outcomes())
}

func TestTick_RetryThenSuccess(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.client.publish = func(call int, _ delivery.Post) (string, error) {
		if call < 2 {
			return "", delivery.Transient("timeout")
		}
		return "ext-ok", nil
	}
	ctx := context.Background()

	env.sched.Tick(ctx)
	assert.Equal(t, 1, env.store.get(item.ID).RetryCount)

	// повтор ещё не наступил
	env.clock.Set(t0.Add(30 * time.Second))
	stats := env.sched.Tick(ctx)
	assert.Zero(t, stats.Due)

	env.clock.Set(t0.Add(60 * time.Second))
	env.sched.Tick(ctx)
	got := env.store.get(item.ID)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, t0.Add(60*time.Second+120*time.Second), *got.NextRetryAt)

	env.clock.Set(t0.Add(180 * time.Second))
	stats = env.sched.Tick(ctx)
	assert.Equal(t, 1, stats.Posted)

	got = env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusPosted, got.Status)
	assert.Equal(t, "ext-ok", got.ExternalID)
	assert.Equal(t, 2, got.RetryCount)
	assert.Nil(t, got.NextRetryAt)
	assert.Len(t, env.client.calls(), 3)
}

func TestTick_MaxRetriesExceeded(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.client.publish = func(int, delivery.Post) (string, error) {
		return "", delivery.Transient("connection reset")
	}
	ctx := context.Background()

	// 60s, 120s, 240s между попытками
	at := t0
	for _, delay := range []time.Duration{0, 60 * time.Second, 120 * time.Second, 240 * time.Second} {
		at = at.Add(delay)
		env.clock.Set(at)
		env.sched.Tick(ctx)
	}

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Contains(t, got.LastError, "max retries exceeded")
	assert.Len(t, env.client.calls(), 4, "max_retries=3 means 4 attempts")

	// FAILED больше не выбирается
	env.clock.Set(at.Add(24 * time.Hour))
	env.sched.Tick(ctx)
	assert.Len(t, env.client.calls(), 4)

	outcomes := env.notifier.outcomes()
	require.Len(t, outcomes, 4)
	assert.Equal(t, notify.OutcomeFailed, outcomes[3])
}

func TestTick_PermanentErrorsFailImmediately(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"validation", delivery.Validation("duplicate content"), "duplicate content"},
		{"not found", delivery.NotFound("account gone"), "account gone"},
		{"auth", delivery.Auth("token revoked"), "reconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := newPost(t0)
			env := newTestEnv(item)
			env.client.publish = func(int, delivery.Post) (string, error) { return "", tt.err }

			stats := env.sched.Tick(context.Background())
			assert.Equal(t, 1, stats.Failed)

			got := env.store.get(item.ID)
			assert.Equal(t, domain.ItemStatusFailed, got.Status)
			assert.Zero(t, got.RetryCount)
			assert.Contains(t, got.LastError, tt.wantMsg)
			assert.Equal(t, []notify.Outcome{notify.OutcomeFailed}, env.notifier.outcomes())
		})
	}
}

func TestTick_MissingCredentialFails(t *testing.T) {
	item := newPost(t0)
	item.AccountID = uuid.New()
	env := newTestEnv(item)

	env.sched.Tick(context.Background())

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusFailed, got.Status)
	assert.Empty(t, env.client.calls())
}

func TestTick_EmptyExternalIDIsTransient(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.client.publish = func(int, delivery.Post) (string, error) { return "", nil }

	env.sched.Tick(context.Background())

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusScheduled, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.ExternalID)
	assert.Contains(t, got.LastError, ErrEmptyExternalID.Error())
}

func TestTick_AlreadyDeliveredIsCorrected(t *testing.T) {
	item := newPost(t0)
	item.ExternalID = "ext-existing"
	env := newTestEnv(item)

	stats := env.sched.Tick(context.Background())

	assert.Equal(t, 1, stats.AlreadyPosted)
	assert.Empty(t, env.client.calls())

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusPosted, got.Status)
	assert.Equal(t, "ext-existing", got.ExternalID)
}

func TestTick_UnionWithoutDuplicates(t *testing.T) {
	// попадает и в due, и в retryable выборку
	retry := newPost(t0.Add(-time.Hour))
	next := t0.Add(-time.Second)
	retry.NextRetryAt = &next
	retry.RetryCount = 1

	env := newTestEnv(retry, newPost(t0))

	stats := env.sched.Tick(context.Background())

	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 2, stats.Posted)
	assert.Len(t, env.client.calls(), 2)
}

func TestTick_ConcurrentSchedulersDeliverOnce(t *testing.T) {
	const n = 50

	items := make([]domain.Item, n)
	for i := range items {
		items[i] = newPost(t0.Add(-time.Duration(i) * time.Second))
	}

	env := newTestEnv(items...)
	other := env.newScheduler()

	var wg sync.WaitGroup
	stats := make([]PassStats, 2)
	for i, s := range []*Scheduler{env.sched, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats[i] = s.Tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, env.client.calls(), n)
	assert.Equal(t, n, stats[0].Posted+stats[1].Posted)
	for _, item := range items {
		assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
	}
}

func TestTick_LostClaimDoesNotOverwriteReplicaResult(t *testing.T) {
	tests := []struct {
		name   string
		result func() (string, error)
	}{
		{"transient failure", func() (string, error) { return "", delivery.Transient("timeout") }},
		{"permanent failure", func() (string, error) { return "", delivery.Validation("too long") }},
		{"late success", func() (string, error) { return "ext-A", nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := newPost(t0)
			item.Content.Media = []string{"a.png", "b.jpg"}
			env := newTestEnv(item)

			other := env.replica()
			other.client.publish = func(int, delivery.Post) (string, error) {
				return "ext-B", nil
			}

			var otherStats PassStats
			env.client.publish = func(int, delivery.Post) (string, error) {
				// публикация висит дольше StaleAfter: второй инстанс
				// возвращает claim и доставляет сам
				env.clock.Set(env.clock.Now().Add(3 * time.Minute))
				otherStats = other.sched.Tick(context.Background())
				return tt.result()
			}

			stats := env.sched.Tick(context.Background())

			require.Equal(t, int64(1), otherStats.Reverted)
			require.Equal(t, 1, otherStats.Posted)
			assert.Equal(t, 1, stats.ClaimLost)
			assert.Zero(t, stats.Posted+stats.Retried+stats.Failed+stats.Errors)

			got := env.store.get(item.ID)
			assert.Equal(t, domain.ItemStatusPosted, got.Status)
			assert.Equal(t, "ext-B", got.ExternalID)
			assert.Zero(t, got.RetryCount)
			assert.Nil(t, got.NextRetryAt)
			assert.Empty(t, got.LastError)

			assert.Empty(t, env.notifier.outcomes())
			assert.Equal(t, []notify.Outcome{notify.OutcomePosted}, other.notifier.outcomes())
		})
	}
}

func TestTick_MediaUploadsRefreshClaim(t *testing.T) {
	item := newPost(t0)
	item.Content.Media = []string{"a.png", "b.jpg", "a.png"}
	env := newTestEnv(item)
	env.client.upload = func(data []byte, _ string) (string, error) {
		env.clock.Set(env.clock.Now().Add(61 * time.Second))
		return "media-" + string(data), nil
	}

	other := env.replica()
	var otherStats PassStats
	env.client.publish = func(int, delivery.Post) (string, error) {
		otherStats = other.sched.Tick(context.Background())
		return "ext-A", nil
	}

	stats := env.sched.Tick(context.Background())

	assert.Zero(t, otherStats.Reverted)
	assert.Zero(t, otherStats.Due)
	assert.Empty(t, other.client.calls())
	assert.Equal(t, 1, stats.Posted)

	got := env.store.get(item.ID)
	assert.Equal(t, domain.ItemStatusPosted, got.Status)
	assert.Equal(t, "ext-A", got.ExternalID)
}

func TestTick_DeliveredItemCorrectedOnce(t *testing.T) {
	item := newPost(t0)
	item.ExternalID = "ext-existing"
	env := newTestEnv(item)
	other := env.replica()

	first := env.sched.Tick(context.Background())
	assert.Equal(t, 1, first.AlreadyPosted)

	// вторая выборка успела увидеть SCHEDULED до исправления
	stale := item
	assert.Equal(t, outcomeSkipped, other.sched.process(context.Background(), &stale))
	assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
}

func TestTick_MediaFailuresAreSkipped(t *testing.T) {
	item := newPost(t0)
	item.Content.Media = []string{"a.png", "missing.gif", "b.jpg"}
	env := newTestEnv(item)

	env.sched.Tick(context.Background())

	calls := env.client.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"media-a", "media-b"}, calls[0].MediaIDs)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, env.client.uploads)
	assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
}

func TestTick_UploadErrorIsSkipped(t *testing.T) {
	item := newPost(t0)
	item.Content.Media = []string{"a.png"}
	env := newTestEnv(item)
	env.client.upload = func([]byte, string) (string, error) {
		return "", delivery.Validation("unsupported media")
	}

	env.sched.Tick(context.Background())

	calls := env.client.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].MediaIDs)
	assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
}

func TestTick_NotifierErrorDoesNotAffectItem(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.notifier.err = errors.New("broker down")

	env.sched.Tick(context.Background())

	assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
}

func TestTick_UpdateErrorCounted(t *testing.T) {
	item := newPost(t0)
	env := newTestEnv(item)
	env.store.updateErr = errors.New("db down")

	stats := env.sched.Tick(context.Background())

	assert.Equal(t, 1, stats.Errors)
	// осталась в PROCESSING, Reaper вернёт её позже
	assert.Equal(t, domain.ItemStatusProcessing, env.store.get(item.ID).Status)
}

func TestTick_PacingStopsOnCancel(t *testing.T) {
	env := newTestEnv(newPost(t0), newPost(t0.Add(-time.Second)))
	env.sched.paceDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	env.client.publish = func(int, delivery.Post) (string, error) {
		cancel()
		return "ext", nil
	}

	stats := env.sched.Tick(ctx)

	assert.Equal(t, 1, stats.Posted)
	assert.Len(t, env.client.calls(), 1)
}

// --- Recurrence ---

func TestTick_WeeklyRecurrenceCreatesNextOccurrence(t *testing.T) {
	item := newPost(t0)
	item.Content.Media = []string{"a.png"}
	item.Recurrence = &domain.Recurrence{Type: domain.RecurrenceWeekly, Interval: 1}
	env := newTestEnv(item)

	env.sched.Tick(context.Background())

	created := env.store.createdItems()
	require.Len(t, created, 1)

	next := created[0]
	assert.NotEqual(t, item.ID, next.ID)
	assert.Equal(t, t0.AddDate(0, 0, 7), next.ScheduledAt)
	assert.Equal(t, domain.ItemStatusScheduled, next.Status)
	assert.Equal(t, item.Content, next.Content)
	assert.Equal(t, item.AccountID, next.AccountID)
	assert.Zero(t, next.RetryCount)
	assert.Empty(t, next.ExternalID)
	require.NotNil(t, next.Recurrence)
	assert.Equal(t, domain.RecurrenceWeekly, next.Recurrence.Type)
}

func TestTick_RecurrenceRespectsEndDate(t *testing.T) {
	end := t0.AddDate(0, 0, 3)
	item := newPost(t0)
	item.Recurrence = &domain.Recurrence{Type: domain.RecurrenceWeekly, Interval: 1, EndDate: &end}
	env := newTestEnv(item)

	env.sched.Tick(context.Background())

	assert.Empty(t, env.store.createdItems())
	assert.Equal(t, domain.ItemStatusPosted, env.store.get(item.ID).Status)
}

func TestTick_FailedItemDoesNotRecur(t *testing.T) {
	item := newPost(t0)
	item.Recurrence = &domain.Recurrence{Type: domain.RecurrenceDaily, Interval: 1}
	env := newTestEnv(item)
	env.client.publish = func(int, delivery.Post) (string, error) { return "", delivery.Validation("bad") }

	env.sched.Tick(context.Background())

	assert.Empty(t, env.store.createdItems())
}
