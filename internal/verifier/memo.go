package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// memoTTL bounds how long a judgment stays cached. The oracle is pure
// under fixed decoding, so staleness only matters across model upgrades.
const memoTTL = time.Hour

// Memoized wraps a Verifier with a cache keyed on the request contents.
// Repeated (param, param) queries within one run hit the cache instead
// of the backend.
type Memoized struct {
	inner    domain.Verifier
	cache    domain.Cache
	tenantID string
}

// NewMemoized creates a memoizing wrapper. A nil cache passes through.
func NewMemoized(inner domain.Verifier, cache domain.Cache, tenantID string) *Memoized {
	return &Memoized{inner: inner, cache: cache, tenantID: tenantID}
}

// Verify consults the cache before calling the backend. Only successful
// judgments are cached; unavailability must stay retryable.
func (m *Memoized) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifyResult, error) {
	if m.cache == nil {
		return m.inner.Verify(ctx, req)
	}

	key := memoKey(req)
	if data, err := m.cache.Get(ctx, m.tenantID, key); err == nil && data != nil {
		var result domain.VerifyResult
		if err := json.Unmarshal(data, &result); err == nil {
			return result, nil
		}
	}

	result, err := m.inner.Verify(ctx, req)
	if err != nil {
		return result, err
	}

	if data, err := json.Marshal(result); err == nil {
		_ = m.cache.Set(ctx, m.tenantID, key, data, memoTTL)
	}
	return result, nil
}

func memoKey(req domain.VerifyRequest) string {
	h := sha256.New()
	for _, part := range []string{req.RegulatoryParam, req.RegulatoryContext, req.CandidateParam, req.CandidateContext} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "verify:" + hex.EncodeToString(h.Sum(nil))
}
