package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"notifboard/internal/mock"
	"notifboard/internal/notification"
)

// ErrSourceUnavailable wraps transport failures and non-success envelopes.
var ErrSourceUnavailable = errors.New("feed: source unavailable")

// Source mints one notification per call.
type Source interface {
	Name() string
	Generate(ctx context.Context) (notification.Notification, error)
}

// LocalSource draws from an in-process mock generator.
type LocalSource struct {
	gen *mock.Generator
}

func NewLocalSource(gen *mock.Generator) *LocalSource {
	if gen == nil {
		gen = mock.NewGenerator()
	}
	return &LocalSource{gen: gen}
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) Generate(ctx context.Context) (notification.Notification, error) {
	if err := ctx.Err(); err != nil {
		return notification.Notification{}, err
	}
	return s.gen.Next(), nil
}

// GenerateRequest is the body the mock endpoint accepts.
type GenerateRequest struct {
	Action string `json:"action"`
}

// GenerateResponse is the mock endpoint envelope.
type GenerateResponse struct {
	Success      bool                       `json:"success"`
	Notification *notification.Notification `json:"notification,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

// HTTPSource asks a remote mock endpoint for a notification.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Generate(ctx context.Context) (notification.Notification, error) {
	body, _ := json.Marshal(GenerateRequest{Action: "generate"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return notification.Notification{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return notification.Notification{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	var env GenerateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return notification.Notification{}, fmt.Errorf("%w: status %d: decode: %v", ErrSourceUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success || env.Notification == nil {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return notification.Notification{}, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, msg)
	}
	n := env.Notification.Normalize()
	if err := n.Validate(); err != nil {
		return notification.Notification{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return n, nil
}
