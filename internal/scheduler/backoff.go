package scheduler

import "time"

// Параметры backoff по умолчанию.
const (
	DefaultBaseDelay = 60 * time.Second
	DefaultMaxDelay  = time.Hour
)

// BackoffPolicy — экспоненциальная задержка между повторами.
//
//	delay(attempt) = min(Base * 2^attempt, Max)
//
// attempt — количество уже сделанных повторов (с 0, до инкремента).
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff — 60s, 120s, 240s, ... не больше часа.
var DefaultBackoff = BackoffPolicy{Base: DefaultBaseDelay, Max: DefaultMaxDelay}

// Delay вычисляет задержку для attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		// удвоение до переполнения не доходит: обрываем на maxDelay
		if delay >= maxDelay {
			break
		}
		delay *= 2
	}

	return min(delay, maxDelay)
}

// Backoff — задержка по DefaultBackoff.
func Backoff(attempt int) time.Duration {
	return DefaultBackoff.Delay(attempt)
}
