package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/fastygo/deadlines/domain"
)

// ParseWhatsAppMessage sends one message to the backend extractor.
func (c *Client) ParseWhatsAppMessage(ctx context.Context, msg domain.WhatsAppMessage) (*domain.ParseResult, error) {
	if msg.Message == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "message is required")
	}
	var res domain.ParseResult
	call := Call{Method: http.MethodPost, Path: "/api/whatsapp/parse-message", Body: msg, RequireAuth: true}
	if err := c.Request(ctx, call, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadWhatsAppChat uploads an exported chat as multipart form field "file".
func (c *Client) UploadWhatsAppChat(ctx context.Context, filename string, chat io.Reader) (*domain.ParseResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, chat); err != nil {
		return nil, fmt.Errorf("read chat export: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	var res domain.ParseResult
	call := Call{
		Method:      http.MethodPost,
		Path:        "/api/whatsapp/upload-chat",
		RawBody:     buf.Bytes(),
		ContentType: form.FormDataContentType(),
		RequireAuth: true,
	}
	if err := c.Request(ctx, call, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
