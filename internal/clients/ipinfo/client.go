// Package ipinfo resolves the public IP recorded at signup.
package ipinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Unavailable is stored when the lookup fails.
const Unavailable = "No disponible"

// Resolver returns the public IP seen by the lookup service.
type Resolver interface {
	Lookup(ctx context.Context) (string, error)
}

// Client queries an ipify-compatible endpoint answering {"ip": "..."}.
type Client struct {
	url  string
	http *http.Client
}

// NewClient builds a Client with the given per-request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Lookup performs the request.
func (c *Client) Lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup: status %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("ip lookup: decode: %w", err)
	}
	if strings.TrimSpace(body.IP) == "" {
		return "", errors.New("ip lookup: empty ip")
	}
	return body.IP, nil
}

// LookupOrUnavailable never fails; errors degrade to Unavailable.
func LookupOrUnavailable(ctx context.Context, r Resolver) string {
	if r == nil {
		return Unavailable
	}
	ip, err := r.Lookup(ctx)
	if err != nil {
		return Unavailable
	}
	return ip
}
