// Package assistant exposes text generation as one opaque capability. The
// board and auth code never depend on which backend answers.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Tasks understood by the generation backend.
const (
	TaskChat         = "chat"
	TaskSecurityPlan = "security_plan"
	TaskInfoAgent    = "info_agent"
)

var (
	// ErrUnavailable is returned when no backend is configured.
	ErrUnavailable = errors.New("generator unavailable")
	// ErrUpstream wraps backend failures.
	ErrUpstream = errors.New("generator failed")
)

// Turn is one prior message given to the backend as context.
type Turn struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Request is what gets generated from.
type Request struct {
	Task    string            `json:"task"`
	Inputs  map[string]string `json:"inputs"`
	History []Turn            `json:"history,omitempty"`
}

// Response carries free text, structured data, or both.
type Response struct {
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Generator produces a Response for a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Unavailable is the Generator used when nothing is configured.
type Unavailable struct{}

// Generate always fails with ErrUnavailable.
func (Unavailable) Generate(context.Context, Request) (Response, error) {
	return Response{}, ErrUnavailable
}

// HTTPGenerator posts requests as JSON to a generation service.
type HTTPGenerator struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewHTTPGenerator builds a generator with the given per-request timeout.
func NewHTTPGenerator(url, apiKey string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{url: url, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// Generate sends req and decodes the Response.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Response{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	if len(out.Data) > 0 && !json.Valid(out.Data) {
		return Response{}, fmt.Errorf("%w: invalid data", ErrUpstream)
	}
	return out, nil
}
