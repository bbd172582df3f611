package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// maxMediaSize — ограничение размера одного медиа.
const maxMediaSize = 64 << 20

// ErrUnsupportedMedia — ссылка на медиа неизвестного формата.
var ErrUnsupportedMedia = errors.New("unsupported media reference")

// MediaLoader читает медиа по ссылке.
type MediaLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// MIMEType определяет MIME-тип по расширению файла.
// Для неизвестных расширений возвращает application/octet-stream.
func MIMEType(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}

	ext := strings.ToLower(path.Ext(p))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// "text/plain; charset=utf-8" → "text/plain"
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// mediaTypes — типы, которые чаще всего встречаются в постах.
// mime.TypeByExtension зависит от системных таблиц, поэтому основные фиксируем.
var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// RouterLoader выбирает loader по схеме ссылки:
//   - "s3://bucket/key" → S3
//   - "http://", "https://" → HTTP
//   - остальное → локальная файловая система
type RouterLoader struct {
	Files *FileLoader
	HTTP  *HTTPLoader
	S3    *S3Loader // опционально
}

// Load читает медиа.
func (r *RouterLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		if r.S3 == nil {
			return nil, fmt.Errorf("%w: s3 storage is not configured: %s", ErrUnsupportedMedia, ref)
		}
		return r.S3.Load(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if r.HTTP == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref)
		}
		return r.HTTP.Load(ctx, ref)
	default:
		if r.Files == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref)
		}
		return r.Files.Load(ctx, ref)
	}
}

// FileLoader читает медиа с локального диска.
type FileLoader struct {
	// Root — корневая директория; относительные пути считаются от неё.
	Root string
}

// Load читает файл.
func (l *FileLoader) Load(_ context.Context, ref string) ([]byte, error) {
	p := ref
	if !filepath.IsAbs(p) && l.Root != "" {
		p = filepath.Join(l.Root, filepath.Clean("/"+p))
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open media %s: %w", ref, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", ref, err)
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media %s exceeds %d bytes", ref, maxMediaSize)
	}
	return data, nil
}

// HTTPLoader скачивает медиа по URL.
type HTTPLoader struct {
	Client  *http.Client
	Timeout time.Duration
}

// Load скачивает медиа.
func (l *HTTPLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media %s: HTTP %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", ref, err)
	}
	if len(data) > maxMediaSize {
		return nil, fmt.Errorf("media %s exceeds %d bytes", ref, maxMediaSize)
	}
	return data, nil
}
