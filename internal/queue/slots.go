package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Herald/internal/domain"
)

// DefaultLookaheadDays — горизонт генерации слотов.
const DefaultLookaheadDays = 30

// GenerateSlots возвращает свободные слоты публикаций по политике,
// в хронологическом порядке, начиная с сегодняшнего дня (в часовом поясе политики).
//
// Слот пропускается, если он:
//   - не позже now
//   - совпадает (с точностью до минуты) с occupied
//   - ближе MinInterval к предыдущему сгенерированному слоту
//
// Выходные пропускаются при SkipWeekends. За день генерируется не больше MaxPostsPerDay слотов.
// Выключенная политика даёт пустой список.
func GenerateSlots(policy *domain.QueuePolicy, occupied []time.Time, now time.Time, lookaheadDays int) ([]time.Time, error) {
	if policy == nil || !policy.Enabled {
		return nil, nil
	}
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}

	times, err := policy.ClockTimes()
	if err != nil {
		return nil, fmt.Errorf("queue policy: %w", err)
	}
	if len(times) == 0 {
		return nil, nil
	}

	loc := policy.Location()
	minInterval := policy.MinInterval()

	taken := make(map[int64]struct{}, len(occupied))
	for _, t := range occupied {
		taken[minuteKey(t)] = struct{}{}
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var (
		slots []time.Time
		last  time.Time
	)
	for d := 0; d < lookaheadDays; d++ {
		day := today.AddDate(0, 0, d)
		if policy.SkipWeekends && isWeekend(day.Weekday()) {
			continue
		}

		perDay := 0
		for _, ct := range times {
			if policy.MaxPostsPerDay > 0 && perDay >= policy.MaxPostsPerDay {
				break
			}

			slot := time.Date(day.Year(), day.Month(), day.Day(), ct.Hour, ct.Minute, 0, 0, loc)
			if !slot.After(now) {
				continue
			}
			if _, ok := taken[minuteKey(slot)]; ok {
				continue
			}
			if !last.IsZero() && slot.Sub(last) < minInterval {
				continue
			}

			slots = append(slots, slot)
			last = slot
			perDay++
		}
	}

	return slots, nil
}

// Assignment — назначенное время для публикации из очереди.
type Assignment struct {
	ItemID      uuid.UUID `json:"item_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Plan — результат распределения очереди.
type Plan struct {
	Assignments []Assignment `json:"assignments"`

	// Overflow — сколько публикаций осталось без слота.
	Overflow int `json:"overflow"`
}

// Allocate распределяет очередь (в порядке FIFO) по слотам.
// Первые min(len(queued), len(slots)) публикаций получают первые слоты,
// остальные учитываются в Overflow.
func Allocate(queued []domain.Item, slots []time.Time) Plan {
	n := min(len(queued), len(slots))

	plan := Plan{
		Assignments: make([]Assignment, 0, n),
		Overflow:    len(queued) - n,
	}
	for i := 0; i < n; i++ {
		plan.Assignments = append(plan.Assignments, Assignment{
			ItemID:      queued[i].ID,
			ScheduledAt: slots[i],
		})
	}

	return plan
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func minuteKey(t time.Time) int64 {
	return t.Unix() / 60
}
