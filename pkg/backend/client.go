// Package backend talks to the generation backend over HTTP: the multipart
// streaming endpoint, the model list and the chat REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/logger"
)

const (
	generatePath = "/api/generate/stream"
	modelsPath   = "/api/models"
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client
type Option func(*Client)

// WithToken attaches a static bearer token to every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request, including reading a streamed body
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GenerateRequest is one call to the streaming generation endpoint
type GenerateRequest struct {
	Model    string
	Prompt   string
	Messages []chat.HistoryEntry
	AutoMode bool
	Images   []chat.Attachment
}

// GenerateStream posts req as multipart form data and returns the raw event
// stream body. The caller must close it.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	log := logger.WithComponent("backend")

	body, contentType, err := encodeGenerateForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	log.Debug("Starting generation stream",
		"model", req.Model,
		"history", len(req.Messages),
		"images", len(req.Images),
		"auto_mode", req.AutoMode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error("Generation request rejected", "status_code", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Body: errorMessage(data)}
	}
	return resp.Body, nil
}

func encodeGenerateForm(req GenerateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	history := req.Messages
	if history == nil {
		history = []chat.HistoryEntry{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode history: %w", err)
	}

	autoMode := "false"
	if req.AutoMode {
		autoMode = "true"
	}

	fields := [][2]string{
		{"model", req.Model},
		{"prompt", req.Prompt},
		{"messages", string(encoded)},
		{"autoMode", autoMode},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	for i, img := range req.Images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image_%d", i+1)
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, name))
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to add image %s: %w", name, err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write image %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorMessage pulls the {error|message} field out of a JSON error body,
// falling back to the raw text
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
