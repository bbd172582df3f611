package delivery

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind — категория ошибки доставки.
type Kind string

const (
	// KindTransient — сеть, 5xx, rate limit. Можно повторить с backoff.
	KindTransient Kind = "transient"

	// KindValidation — некорректный контент, отклонённое медиа, дубликат. Не повторяем.
	KindValidation Kind = "validation"

	// KindAuth — просроченный или невалидный токен. Владелец должен переподключить аккаунт.
	KindAuth Kind = "auth"

	// KindNotFound — нет аккаунта или конфигурации приложения. Не повторяем.
	KindNotFound Kind = "not_found"
)

// Sentinel-ошибки для errors.Is.
var (
	ErrTransient  = errors.New("transient delivery error")
	ErrValidation = errors.New("permanent validation error")
	ErrAuth       = errors.New("auth error")
	ErrNotFound   = errors.New("not found")
)

// Error — классифицированная ошибка доставки.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap позволяет errors.Is(err, ErrTransient) и т.п.
func (e *Error) Unwrap() []error {
	errs := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrAuth
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrTransient
	}
}

// Transient создаёт транзиентную ошибку.
func Transient(format string, args ...any) error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Validation создаёт ошибку валидации.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Auth создаёт ошибку авторизации.
func Auth(format string, args ...any) error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

// NotFound создаёт ошибку отсутствующей конфигурации.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Classify определяет категорию ошибки.
// Неизвестные ошибки считаются транзиентными.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}

	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}

	// сеть, таймауты и всё неизвестное
	return KindTransient
}

// IsRetryable возвращает true, если ошибку можно повторить.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

// classifyStatus сопоставляет HTTP-код категории.
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return KindTransient
	case code >= 500:
		return KindTransient
	case code >= 400:
		// 400, 403, 409 (дубликат), 413, 422
		return KindValidation
	default:
		return KindTransient
	}
}
