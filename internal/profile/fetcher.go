// Package profile resolves counterpart display metadata from the backend
// profile endpoint, with a bounded expiring cache in front of it.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/changyunjeff/campus-mp/internal/domain"
)

const (
	DefaultTTL  = 30 * time.Minute
	DefaultSize = 500

	fetchTimeout = 10 * time.Second
)

// HTTPFetcher implements domain.ProfileFetcher against
// GET {base}/api/users/{id}/profile. Concurrent lookups of the same id share
// one request.
type HTTPFetcher struct {
	base   string
	token  string
	client *http.Client
	cache  *expirable.LRU[string, domain.Profile]
	group  singleflight.Group
	logger *zap.Logger
}

func NewHTTPFetcher(baseURL, token string, size int, ttl time.Duration, client *http.Client, logger *zap.Logger) *HTTPFetcher {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: client,
		cache:  expirable.NewLRU[string, domain.Profile](size, nil, ttl),
		logger: logger,
	}
}

func (f *HTTPFetcher) FetchProfile(ctx context.Context, id string) (domain.Profile, error) {
	if id == "" {
		return domain.Profile{}, fmt.Errorf("%w: empty user id", domain.ErrValidation)
	}
	if p, ok := f.cache.Get(id); ok {
		return p, nil
	}
	// The shared request outlives any single caller; each caller only
	// stops waiting when its own context ends.
	ch := f.group.DoChan(id, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		p, err := f.get(fctx, id)
		if err != nil {
			return domain.Profile{}, err
		}
		f.cache.Add(id, p)
		return p, nil
	})
	select {
	case <-ctx.Done():
		return domain.Profile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Profile{}, res.Err
		}
		if res.Shared {
			f.logger.Debug("profile_fetch_shared", zap.String("user", id))
		}
		return res.Val.(domain.Profile), nil
	}
}

// Invalidate drops a cached profile so the next lookup goes to the network.
func (f *HTTPFetcher) Invalidate(id string) { f.cache.Remove(id) }

func (f *HTTPFetcher) get(ctx context.Context, id string) (domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/api/users/"+url.PathEscape(id)+"/profile", nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: fetch profile %s: %v", domain.ErrConnection, id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Profile{}, fmt.Errorf("%w: profile %s", domain.ErrNotFound, id)
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.Profile{}, domain.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return domain.Profile{}, fmt.Errorf("fetch profile %s: unexpected status %d", id, resp.StatusCode)
	}

	var p domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		return domain.Profile{}, errors.New("profile id mismatch")
	}
	return p, nil
}
