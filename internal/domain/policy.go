package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// QueuePolicy — правила распределения очереди аккаунта по времени.
//
// Политика с AccountID == nil — политика по умолчанию.
type QueuePolicy struct {
	// AccountID — аккаунт; nil для политики по умолчанию.
	AccountID *uuid.UUID `json:"account_id,omitempty"`

	// Enabled — если false, очередь не распределяется.
	Enabled bool `json:"enabled"`

	// Times — время публикаций в течение дня, "HH:MM" по локальному времени.
	Times []string `json:"times"`

	// Timezone — часовой пояс для Times, например "Europe/Moscow".
	Timezone string `json:"timezone"`

	// MinIntervalMinutes — минимальный интервал между слотами.
	MinIntervalMinutes int `json:"min_interval_minutes"`

	// MaxPostsPerDay — максимум слотов в день; 0 — без ограничения.
	MaxPostsPerDay int `json:"max_posts_per_day"`

	// SkipWeekends — не публиковать в субботу и воскресенье.
	SkipWeekends bool `json:"skip_weekends"`
}

// DefaultQueuePolicy возвращает встроенную политику.
// Используется, если в БД нет ни политики аккаунта, ни общей.
func DefaultQueuePolicy() *QueuePolicy {
	return &QueuePolicy{
		Enabled:            true,
		Times:              []string{"09:00", "12:00", "17:00"},
		Timezone:           "UTC",
		MinIntervalMinutes: 60,
		MaxPostsPerDay:     3,
		SkipWeekends:       false,
	}
}

// Location возвращает часовой пояс политики.
// Fallback на UTC, если timezone невалидный.
func (p *QueuePolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MinInterval возвращает MinIntervalMinutes как time.Duration.
func (p *QueuePolicy) MinInterval() time.Duration {
	return time.Duration(p.MinIntervalMinutes) * time.Minute
}

// ClockTime — время дня.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes возвращает количество минут от полуночи.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseClockTime парсит строку "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ClockTimes возвращает Times, распарсенные, отсортированные и без дублей.
func (p *QueuePolicy) ClockTimes() ([]ClockTime, error) {
	seen := make(map[int]bool, len(p.Times))
	out := make([]ClockTime, 0, len(p.Times))
	for _, s := range p.Times {
		ct, err := ParseClockTime(s)
		if err != nil {
			return nil, err
		}
		if seen[ct.Minutes()] {
			continue
		}
		seen[ct.Minutes()] = true
		out = append(out, ct)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Minutes() < out[b].Minutes() })
	return out, nil
}

// Validate проверяет политику.
func (p *QueuePolicy) Validate() error {
	if _, err := p.ClockTimes(); err != nil {
		return err
	}
	if p.MinIntervalMinutes < 0 {
		return fmt.Errorf("min_interval_minutes must be >= 0")
	}
	if p.MaxPostsPerDay < 0 {
		return fmt.Errorf("max_posts_per_day must be >= 0")
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
		}
	}
	return nil
}
