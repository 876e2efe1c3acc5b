package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRgetHTTPClientStampsRequests(t *testing.T) {
	requests := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(r.Context())
	}))
	defer srv.Close()

	client := NewRgetHTTPClient(HTTPClientConfig{
		Timeout:  5 * time.Second,
		Headers:  map[string]string{"X-Token": "abc"},
		Username: "user",
		Password: "secret",
	})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	got := <-requests
	assert.Equal(t, ToolUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "abc", got.Header.Get("X-Token"))
	user, pass, ok := got.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "user", user)
	assert.Equal(t, "secret", pass)
}

func TestRgetHTTPClientKeepsRequestRange(t *testing.T) {
	ranges := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges <- r.Header.Get("Range")
	}))
	defer srv.Close()

	client := NewRgetHTTPClient(HTTPClientConfig{Headers: map[string]string{"range": "bytes=0-", "X-Token": "abc"}})
	for _, want := range []string{"", "bytes=5-9"} {
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		if want != "" {
			req.Header.Set("Range", want)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, <-ranges)
	}
}

func TestRgetHTTPClientCustomUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
	}))
	defer srv.Close()

	client := NewRgetHTTPClient(HTTPClientConfig{UserAgent: "custom/2.0", HighThreadMode: true})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/2.0", <-agents)
}
