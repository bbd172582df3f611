package domain

import (
	"fmt"
	"time"
)

// RecurrenceType — единица повторения.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// Recurrence — правило повторения публикации.
//
// После успешной публикации создаётся новая с ScheduledAt,
// сдвинутым на Interval единиц Type. Цепочка ограничена только EndDate.
type Recurrence struct {
	// Type — daily, weekly или monthly.
	Type RecurrenceType `json:"type"`

	// Interval — количество единиц между публикациями (>= 1).
	Interval int `json:"interval"`

	// EndDate — последняя допустимая дата (опционально).
	EndDate *time.Time `json:"end_date,omitempty"`
}

// Validate проверяет правило.
func (r *Recurrence) Validate() error {
	switch r.Type {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	if r.Interval < 0 {
		return fmt.Errorf("recurrence interval must not be negative, got %d", r.Interval)
	}
	return nil
}

// Next вычисляет следующую дату от from.
// Возвращает false, если результат позже EndDate или тип неизвестен.
func (r *Recurrence) Next(from time.Time) (time.Time, bool) {
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}

	var next time.Time
	switch r.Type {
	case RecurrenceDaily:
		next = from.AddDate(0, 0, interval)
	case RecurrenceWeekly:
		next = from.AddDate(0, 0, 7*interval)
	case RecurrenceMonthly:
		// 31 января + 1 месяц = 3 марта (нормализация time.AddDate)
		next = from.AddDate(0, interval, 0)
	default:
		return time.Time{}, false
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}
