package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/delivery"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/notify"
)

// --- Store ---

// memStore — Store в памяти. Условные операции атомарны под mutex,
// как условные UPDATE в Postgres.
type memStore struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*domain.Item
	created []uuid.UUID

	updateErr error
}

func newMemStore(items ...domain.Item) *memStore {
	m := &memStore{items: make(map[uuid.UUID]*domain.Item)}
	for _, item := range items {
		m.put(item)
	}
	return m
}

func (m *memStore) put(item domain.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cloneItem(item)
	m.items[item.ID] = &c
}

func (m *memStore) get(id uuid.UUID) domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItem(*m.items[id])
}

func (m *memStore) createdItems() []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Item, 0, len(m.created))
	for _, id := range m.created {
		out = append(out, cloneItem(*m.items[id]))
	}
	return out
}

func (m *memStore) FindDue(_ context.Context, now time.Time, limit int) ([]domain.Item, error) {
	return m.find(limit, func(it *domain.Item) bool {
		return it.Status == domain.ItemStatusScheduled &&
			!it.ScheduledAt.After(now) &&
			(it.NextRetryAt == nil || !it.NextRetryAt.After(now))
	}), nil
}

func (m *memStore) FindRetryable(_ context.Context, now time.Time, limit int) ([]domain.Item, error) {
	return m.find(limit, func(it *domain.Item) bool {
		return it.Status == domain.ItemStatusScheduled &&
			it.NextRetryAt != nil && !it.NextRetryAt.After(now) &&
			it.RetryCount < it.MaxRetries
	}), nil
}

func (m *memStore) find(limit int, match func(*domain.Item) bool) []domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Item
	for _, it := range m.items {
		if match(it) {
			out = append(out, cloneItem(*it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) Claim(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != domain.ItemStatusScheduled || it.ExternalID != "" {
		return false, nil
	}
	it.Status = domain.ItemStatusProcessing
	it.UpdatedAt = now
	return true, nil
}

func (m *memStore) RevertStale(_ context.Context, olderThan, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, it := range m.items {
		if it.Status == domain.ItemStatusProcessing && it.UpdatedAt.Before(olderThan) {
			it.Status = domain.ItemStatusScheduled
			it.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *memStore) Update(_ context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	it, ok := m.items[item.ID]
	if !ok || it.Status != domain.ItemStatusProcessing || it.ExternalID != "" {
		return domain.ErrClaimLost
	}
	it.Status = item.Status
	it.ExternalID = item.ExternalID
	it.RetryCount = item.RetryCount
	it.LastError = item.LastError
	it.NextRetryAt = item.NextRetryAt
	it.UpdatedAt = item.UpdatedAt
	return nil
}

func (m *memStore) Touch(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != domain.ItemStatusProcessing {
		return domain.ErrClaimLost
	}
	it.UpdatedAt = now
	return nil
}

func (m *memStore) CorrectDelivered(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.Status != domain.ItemStatusScheduled || it.ExternalID == "" {
		return false, nil
	}
	it.Status = domain.ItemStatusPosted
	it.LastError = ""
	it.NextRetryAt = nil
	it.UpdatedAt = now
	return true, nil
}

func (m *memStore) SaveThreadPost(_ context.Context, itemID uuid.UUID, position int, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return errors.New("not found")
	}
	for i := range it.Posts {
		if it.Posts[i].Position == position {
			it.Posts[i].ExternalID = externalID
			return nil
		}
	}
	return errors.New("post not found")
}

func (m *memStore) Create(_ context.Context, item *domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cloneItem(*item)
	m.items[item.ID] = &c
	m.created = append(m.created, item.ID)
	return nil
}

func cloneItem(it domain.Item) domain.Item {
	if it.Posts != nil {
		it.Posts = append([]domain.ThreadPost(nil), it.Posts...)
	}
	if it.NextRetryAt != nil {
		t := *it.NextRetryAt
		it.NextRetryAt = &t
	}
	return it
}

// --- Client ---

type fakeClient struct {
	mu        sync.Mutex
	published []delivery.Post
	uploads   []string

	// publish вызывается с номером вызова (с 0).
	publish func(call int, post delivery.Post) (string, error)
	upload  func(data []byte, mimeType string) (string, error)
}

func (c *fakeClient) Publish(_ context.Context, _ string, post delivery.Post) (string, error) {
	c.mu.Lock()
	call := len(c.published)
	c.published = append(c.published, post)
	fn := c.publish
	c.mu.Unlock()

	if fn == nil {
		return "ext-" + uuid.NewString(), nil
	}
	return fn(call, post)
}

func (c *fakeClient) UploadMedia(_ context.Context, _ string, data []byte, mimeType string) (string, error) {
	c.mu.Lock()
	c.uploads = append(c.uploads, mimeType)
	fn := c.upload
	c.mu.Unlock()

	if fn == nil {
		return "media-" + string(data), nil
	}
	return fn(data, mimeType)
}

func (c *fakeClient) calls() []delivery.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery.Post(nil), c.published...)
}

// --- Media ---

type mapLoader map[string][]byte

func (l mapLoader) Load(_ context.Context, ref string) ([]byte, error) {
	data, ok := l[ref]
	if !ok {
		return nil, errors.New("no such media")
	}
	return data, nil
}

// --- Notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Dispatch(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) outcomes() []notify.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Outcome, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Outcome
	}
	return out
}

// --- Clock ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
