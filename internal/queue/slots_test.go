package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Herald/internal/domain"
)

// 2025-03-10 — понедельник.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func examplePolicy() *domain.QueuePolicy {
	return &domain.QueuePolicy{
		Enabled:            true,
		Times:              []string{"09:00", "15:00"},
		Timezone:           "UTC",
		MinIntervalMinutes: 60,
		MaxPostsPerDay:     2,
		SkipWeekends:       true,
	}
}

func queuedItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		pos := i + 1
		items[i] = domain.Item{
			ID:            uuid.New(),
			Status:        domain.ItemStatusQueued,
			QueuePosition: &pos,
		}
	}
	return items
}

func TestGenerateSlots_TwoDayHorizon(t *testing.T) {
	slots, err := GenerateSlots(examplePolicy(), nil, monday(8, 0), 2)
	require.NoError(t, err)

	want := []time.Time{
		monday(9, 0),
		monday(15, 0),
		monday(9, 0).AddDate(0, 0, 1),
		monday(15, 0).AddDate(0, 0, 1),
	}
	assert.Equal(t, want, slots)

	items := queuedItems(5)
	plan := Allocate(items, slots)

	require.Len(t, plan.Assignments, 4)
	for i, a := range plan.Assignments {
		assert.Equal(t, items[i].ID, a.ItemID)
		assert.Equal(t, want[i], a.ScheduledAt)
	}
	assert.Equal(t, 1, plan.Overflow)
}

func TestGenerateSlots_DefaultHorizon(t *testing.T) {
	slots, err := GenerateSlots(examplePolicy(), nil, monday(8, 0), 0)
	require.NoError(t, err)

	// 30 дней с пропуском выходных: 22 будних дня по 2 слота
	require.Len(t, slots, 44)

	plan := Allocate(queuedItems(5), slots)
	assert.Zero(t, plan.Overflow)
	assert.Equal(t, monday(9, 0).AddDate(0, 0, 2), plan.Assignments[4].ScheduledAt)
}

func TestGenerateSlots_SkipsWeekends(t *testing.T) {
	friday := time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)

	slots, err := GenerateSlots(examplePolicy(), nil, friday, 7)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), slots[0])
	for _, s := range slots {
		assert.False(t, isWeekend(s.Weekday()), "slot %s on weekend", s)
	}
}

func TestGenerateSlots_PastAndNowAreSkipped(t *testing.T) {
	slots, err := GenerateSlots(examplePolicy(), nil, monday(9, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(15, 0)}, slots)
}

func TestGenerateSlots_OccupiedAtMinutePrecision(t *testing.T) {
	occupied := []time.Time{monday(9, 0).Add(30 * time.Second)}

	slots, err := GenerateSlots(examplePolicy(), occupied, monday(8, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(15, 0)}, slots)
}

func TestGenerateSlots_MinInterval(t *testing.T) {
	policy := &domain.QueuePolicy{
		Enabled:            true,
		Times:              []string{"11:00", "09:30", "09:00", "09:00"},
		MinIntervalMinutes: 60,
	}

	slots, err := GenerateSlots(policy, nil, monday(8, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(9, 0), monday(11, 0)}, slots)
}

func TestGenerateSlots_MinIntervalAcrossDays(t *testing.T) {
	policy := &domain.QueuePolicy{
		Enabled:            true,
		Times:              []string{"00:30", "23:45"},
		MinIntervalMinutes: 60,
	}

	slots, err := GenerateSlots(policy, nil, monday(0, 0), 2)
	require.NoError(t, err)
	// 00:30 вторника в 45 минутах от 23:45 понедельника
	assert.Equal(t, []time.Time{
		monday(0, 30),
		monday(23, 45),
		monday(23, 45).AddDate(0, 0, 1),
	}, slots)
}

func TestGenerateSlots_MaxPerDay(t *testing.T) {
	policy := &domain.QueuePolicy{
		Enabled:        true,
		Times:          []string{"09:00", "12:00", "17:00"},
		MaxPostsPerDay: 1,
	}

	slots, err := GenerateSlots(policy, nil, monday(8, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		monday(9, 0),
		monday(9, 0).AddDate(0, 0, 1),
		monday(9, 0).AddDate(0, 0, 2),
	}, slots)
}

func TestGenerateSlots_Timezone(t *testing.T) {
	policy := &domain.QueuePolicy{
		Enabled:  true,
		Times:    []string{"09:00"},
		Timezone: "Europe/Berlin",
	}

	slots, err := GenerateSlots(policy, nil, monday(6, 0), 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	// CET = UTC+1 до перехода на летнее время
	assert.True(t, slots[0].Equal(monday(8, 0)), "got %s", slots[0])
}

func TestGenerateSlots_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	policy := &domain.QueuePolicy{
		Enabled:  true,
		Times:    []string{"09:00"},
		Timezone: "Mars/Olympus",
	}

	slots, err := GenerateSlots(policy, nil, monday(6, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday(9, 0)}, slots)
}

func TestGenerateSlots_Disabled(t *testing.T) {
	policy := examplePolicy()
	policy.Enabled = false

	slots, err := GenerateSlots(policy, nil, monday(8, 0), 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_InvalidTime(t *testing.T) {
	policy := examplePolicy()
	policy.Times = []string{"9am"}

	_, err := GenerateSlots(policy, nil, monday(8, 0), 1)
	assert.Error(t, err)
}

func TestAllocate_MoreSlotsThanItems(t *testing.T) {
	slots := []time.Time{monday(9, 0), monday(15, 0), monday(18, 0)}

	plan := Allocate(queuedItems(2), slots)

	assert.Len(t, plan.Assignments, 2)
	assert.Zero(t, plan.Overflow)
}

func TestSortQueue(t *testing.T) {
	pos := func(p int) *int { return &p }
	base := monday(0, 0)

	items := []domain.Item{
		{ID: uuid.New(), CreatedAt: base},
		{ID: uuid.New(), QueuePosition: pos(2)},
		{ID: uuid.New(), QueuePosition: pos(1)},
		{ID: uuid.New(), CreatedAt: base.Add(-time.Hour)},
	}
	want := []uuid.UUID{items[2].ID, items[1].ID, items[3].ID, items[0].ID}

	sortQueue(items)

	got := make([]uuid.UUID, len(items))
	for i, it := range items {
		got[i] = it.ID
	}
	assert.Equal(t, want, got)
}
