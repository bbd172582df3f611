package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrEmptyExternalID — API публикации ответило успехом без ID.
	// Считается транзиентной ошибкой доставки.
	ErrEmptyExternalID = errors.New("delivery returned empty external id")

	// ErrEmptyThread — у треда нет постов.
	ErrEmptyThread = errors.New("thread has no posts")

	// ErrAlreadyRunning — Runner уже запущен.
	ErrAlreadyRunning = errors.New("scheduler runner already running")

	// errMaxRetries — префикс сообщения об исчерпанных повторах.
	errMaxRetries = errors.New("max retries exceeded")
)
