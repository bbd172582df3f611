package delivery

import "context"

// Post — исходящий пост.
type Post struct {
	// Text — текст поста.
	Text string `json:"text"`

	// MediaIDs — ID загруженных медиа.
	MediaIDs []string `json:"media_ids,omitempty"`

	// ReplyToID — внешний ID поста, на который отвечаем (для тредов).
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// Client — клиент внешнего API публикации.
//
// Ошибки должны быть классифицированы через *Error
// (Transient / Validation / Auth / NotFound).
// Таймауты — ответственность клиента, наружу они выходят как Transient.
type Client interface {
	// Publish публикует пост и возвращает его внешний ID.
	Publish(ctx context.Context, token string, post Post) (string, error)

	// UploadMedia загружает медиа и возвращает его ID.
	UploadMedia(ctx context.Context, token string, data []byte, mimeType string) (string, error)
}
