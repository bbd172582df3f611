package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClient — Client поверх HTTP API публикации.
//
// Endpoints:
//   - POST {base}/posts  — body: Post (JSON), ответ: {"id": "..."}
//   - POST {base}/media  — body: сырые байты, Content-Type = MIME, ответ: {"media_id": "..."}
//
// Авторизация: "Authorization: Bearer <token>".
type HTTPClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// HTTPClientConfig — конфигурация HTTPClient.
type HTTPClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // таймаут одного запроса (default: 30s)
	HTTPClient *http.Client  // опционально
}

// NewHTTPClient создаёт HTTPClient.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		timeout: timeout,
	}
}

type publishResponse struct {
	ID string `json:"id"`
}

type uploadResponse struct {
	MediaID string `json:"media_id"`
}

// Publish публикует пост.
func (c *HTTPClient) Publish(ctx context.Context, token string, post Post) (string, error) {
	body, err := json.Marshal(post)
	if err != nil {
		return "", Validation("marshal post: %v", err)
	}

	var resp publishResponse
	if err := c.do(ctx, token, "/posts", "application/json", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UploadMedia загружает медиа.
func (c *HTTPClient) UploadMedia(ctx context.Context, token string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", Validation("empty media")
	}

	var resp uploadResponse
	if err := c.do(ctx, token, "/media", mimeType, data, &resp); err != nil {
		return "", err
	}
	if resp.MediaID == "" {
		return "", Transient("media upload returned empty id")
	}
	return resp.MediaID, nil
}

// do выполняет POST-запрос и декодирует JSON-ответ в out.
func (c *HTTPClient) do(ctx context.Context, token, path, contentType string, body []byte, out any) error {
	if c.baseURL == "" {
		return NotFound("publish API url is not configured")
	}
	if token == "" {
		return Auth("empty credential")
	}

	// Таймаут
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return NotFound("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody), 200),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return Transient("decode response: %v", err)
	}
	return nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
