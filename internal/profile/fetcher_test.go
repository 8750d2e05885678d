package profile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/profile"
)

func profileServer(t *testing.T, hits *atomic.Int32, release <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if release != nil {
			<-release
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/users/u2/profile":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(domain.Profile{ID: "u2", Nickname: "Bob", Avatar: "http://img/bob.png"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchProfile(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := profileServer(t, &hits, nil)
	f := profile.NewHTTPFetcher(srv.URL, "tok", 10, time.Minute, srv.Client(), nil)

	p, err := f.FetchProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.Nickname)

	_, err = f.FetchProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup served from cache")

	f.Invalidate("u2")
	_, err = f.FetchProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	_, err = f.FetchProfile(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.FetchProfile(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFetchProfileShared(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := profileServer(t, &hits, release)
	f := profile.NewHTTPFetcher(srv.URL, "tok", 10, time.Minute, srv.Client(), nil)

	var wg sync.WaitGroup
	results := make([]domain.Profile, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.FetchProfile(context.Background(), "u2")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, p := range results {
		assert.Equal(t, "Bob", p.Nickname)
	}
}

func TestFetchProfileCallerCancelled(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := profileServer(t, &hits, release)
	f := profile.NewHTTPFetcher(srv.URL, "tok", 10, time.Minute, srv.Client(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.FetchProfile(ctx, "u2")
		errc <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	// the request started for the cancelled caller still completes and is cached
	close(release)
	p, err := f.FetchProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.Nickname)
	assert.Equal(t, int32(1), hits.Load())
}
