// Package identity verifies national identity documents (DNI) against an
// external registry. Any failure here must abort registration.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrMismatch means the registry answered for a different document number.
	ErrMismatch = errors.New("identity document does not match")
	// ErrUnavailable wraps transport and upstream failures.
	ErrUnavailable = errors.New("identity verification unavailable")
)

// Verifier checks that dni is a registered document.
type Verifier interface {
	Verify(ctx context.Context, dni string) error
}

// Person is the subset of the registry answer we rely on.
type Person struct {
	DocumentNumber string `json:"numeroDocumento"`
	FirstNames     string `json:"nombres"`
	PaternalName   string `json:"apellidoPaterno"`
	MaternalName   string `json:"apellidoMaterno"`
}

// Client calls GET {baseURL}?numero={dni} with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client with the given per-request timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSpace(baseURL),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Verify looks the document up and requires an exact number match.
func (c *Client) Verify(ctx context.Context, dni string) error {
	person, err := c.Lookup(ctx, dni)
	if err != nil {
		return err
	}
	if person.DocumentNumber != dni {
		return ErrMismatch
	}
	return nil
}

// Lookup fetches the registry record for dni.
func (c *Client) Lookup(ctx context.Context, dni string) (Person, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return Person{}, fmt.Errorf("%w: parse url: %w", ErrUnavailable, err)
	}
	q := endpoint.Query()
	q.Set("numero", dni)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Person{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Person{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Person{}, ErrMismatch
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Person{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var person Person
	if err := json.NewDecoder(resp.Body).Decode(&person); err != nil {
		return Person{}, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	return person, nil
}

// Skip accepts every document. Used when no registry is configured.
type Skip struct{}

// Verify always succeeds.
func (Skip) Verify(context.Context, string) error { return nil }
