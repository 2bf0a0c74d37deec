package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			_, _ = fmt.Fprint(w, "User-agent: cvlacsync\nDisallow: /cvlac/private\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n")
		}
	}))
	defer server.Close()

	checker := NewRobotsChecker("cvlacsync/0.1 (+https://example.com)", time.Second)

	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/cvlac/visualizador")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	allowed, _, err = checker.CanFetch(context.Background(), server.URL+"/cvlac/private")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, int32(1), robotsHits.Load(), "robots.txt is fetched once per host")

	other := NewRobotsChecker("somebot", time.Second)
	allowed, _, err = other.CanFetch(context.Background(), server.URL+"/cvlac/visualizador")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsChecker_MissingFileAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	allowed, delay, err := NewRobotsChecker("bot", time.Second).CanFetch(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, delay)
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	allowed, _, err := NewRobotsChecker("bot", time.Second).CanFetch(context.Background(), addr+"/page")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestProductToken(t *testing.T) {
	assert.Equal(t, "cvlacsync", productToken("cvlacsync/0.1 (+https://example.com)"))
	assert.Equal(t, "bot", productToken("bot"))
	assert.Equal(t, "", productToken(""))
}
