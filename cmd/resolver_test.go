package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaps-dev/geobatch/internal/config"
)

func TestNewResolver_UsesConfiguredEndpoint(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"response":{"status":"OK","result":{"point":{"x":"127.0","y":"37.5"}}}}`)
	}))
	defer srv.Close()

	cfg := &config.Config{
		VWorld: config.VWorldConfig{
			Key:         "test-key",
			BaseURL:     srv.URL,
			UserAgent:   "geobatch-test/1.0",
			TimeoutSecs: 5,
			RateLimit:   100,
		},
		CRS: config.CRSConfig{Source: 4326, Target: 5186},
	}

	out := newResolver(cfg).Resolve(context.Background(), "세종로 1")

	require.True(t, out.Resolved, "the configured base_url must be the endpoint the client calls")
	assert.Equal(t, []string{"test-key"}, gotQuery["key"])
	assert.Equal(t, []string{"epsg:4326"}, gotQuery["crs"])
}
