package ipinfo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"190.42.1.7"}`)
	}))
	defer srv.Close()

	ip, err := NewClient(srv.URL, time.Second).Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "190.42.1.7", ip)
}

func TestLookupOrUnavailable_Degrades(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"empty ip": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ip":""}`)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>`)
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			got := LookupOrUnavailable(context.Background(), NewClient(srv.URL, 20*time.Millisecond))
			assert.Equal(t, Unavailable, got)
		})
	}
}

func TestLookupOrUnavailable_NilResolver(t *testing.T) {
	assert.Equal(t, Unavailable, LookupOrUnavailable(context.Background(), nil))
}
