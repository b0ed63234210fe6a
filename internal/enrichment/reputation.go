package enrichment

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/counter"
	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// DefaultReputationTTL is how long a URL-set reputation result stays valid.
const DefaultReputationTTL = time.Hour

// CachingURLScorer caches URL reputation fragments in the shared Redis
// store, keyed by the order-independent hash of the URL set. Cache trouble
// is ignored; the inner scorer is simply called again.
type CachingURLScorer struct {
	inner URLScorer
	cache *counter.Cache
	ttl   time.Duration
}

// NewCachingURLScorer wraps scorer with a reputation cache.
func NewCachingURLScorer(scorer URLScorer, cache *counter.Cache, ttl time.Duration) *CachingURLScorer {
	if ttl <= 0 {
		ttl = DefaultReputationTTL
	}
	return &CachingURLScorer{inner: scorer, cache: cache, ttl: ttl}
}

// ScoreURLs serves from cache when the same URL set was scored within the
// TTL, otherwise delegates and stores the result.
func (s *CachingURLScorer) ScoreURLs(ctx context.Context, urls []string) (model.Fragment, error) {
	if len(urls) == 0 || s.cache == nil {
		return s.inner.ScoreURLs(ctx, urls)
	}

	key := reputationKey(urls)

	var cached model.Fragment
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	frag, err := s.inner.ScoreURLs(ctx, urls)
	if err != nil {
		return model.Fragment{}, err
	}

	// Best effort; a failed write only costs a future lookup.
	_ = s.cache.Set(ctx, key, frag, s.ttl)
	return frag, nil
}

func reputationKey(urls []string) string {
	sorted := make([]string, len(urls))
	copy(sorted, urls)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("reputation:%x", sum[:16])
}
