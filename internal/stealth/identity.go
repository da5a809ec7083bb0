package stealth

import (
	"net/http"
	"sync"

	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

// Identity is one request fingerprint.
type Identity struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Referer        string
	Headers        map[string]string
}

// Header renders the identity as request headers.
func (i Identity) Header() http.Header {
	h := http.Header{}
	for key, value := range i.Headers {
		h.Set(key, value)
	}
	set := func(key, value string) {
		if value != "" {
			h.Set(key, value)
		}
	}
	set("User-Agent", i.UserAgent)
	set("Accept", i.Accept)
	set("Accept-Language", i.AcceptLanguage)
	set("Referer", i.Referer)
	return h
}

// IdentityPool rotates identities without repeating the previous pick.
type IdentityPool struct {
	mu         sync.Mutex
	identities []Identity
	random     *Random
	last       int
}

// NewIdentityPool copies identities into a pool.
func NewIdentityPool(identities []Identity, random *Random) (*IdentityPool, error) {
	if len(identities) == 0 {
		return nil, ingest.Configf("identity pool must not be empty")
	}
	if random == nil {
		random = NewRandomFromRuntime()
	}
	return &IdentityPool{
		identities: append([]Identity(nil), identities...),
		random:     random,
		last:       -1,
	}, nil
}

// Next picks a random identity different from the previous one when the pool allows.
func (p *IdentityPool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.identities)
	idx := 0
	switch {
	case n == 1:
	case p.last < 0:
		idx = p.random.IntN(n)
	default:
		// Draw from the other n-1 slots and shift past the last index.
		idx = p.random.IntN(n - 1)
		if idx >= p.last {
			idx++
		}
	}
	p.last = idx
	return p.identities[idx]
}

// Len reports the pool size.
func (p *IdentityPool) Len() int {
	return len(p.identities)
}

// IdentitiesFromConfig converts configured identities.
func IdentitiesFromConfig(cfgs []config.IdentityConfig) []Identity {
	out := make([]Identity, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Identity{
			UserAgent:      c.UserAgent,
			Accept:         c.Accept,
			AcceptLanguage: c.AcceptLanguage,
			Referer:        c.Referer,
			Headers:        c.Headers,
		})
	}
	return out
}
