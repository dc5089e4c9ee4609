package config

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aristath/equityscope/internal/domain"
)

// SourceCredentials holds the secret material for one external source.
// Secrets never leave the process: JSON serialization redacts them.
type SourceCredentials struct {
	APIKey    string
	APISecret string
	UserAgent string
}

// Configured reports whether any credential material is present.
func (c SourceCredentials) Configured() bool {
	return c.APIKey != "" || c.APISecret != ""
}

// MarshalJSON redacts secrets. Only presence is exported.
func (c SourceCredentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Configured bool   `json:"configured"`
		UserAgent  string `json:"user_agent,omitempty"`
	}{
		Configured: c.Configured(),
		UserAgent:  c.UserAgent,
	})
}

// Credentials is the per-source credential vault.
type Credentials struct {
	Reddit SourceCredentials `json:"reddit"`
	News   SourceCredentials `json:"news"`
	// Yahoo and Wikipedia are unauthenticated; no entries needed.
}

func loadCredentials() Credentials {
	return Credentials{
		Reddit: SourceCredentials{
			APIKey:    getEnv("REDDIT_CLIENT_ID", ""),
			APISecret: getEnv("REDDIT_CLIENT_SECRET", ""),
			UserAgent: getEnv("REDDIT_USER_AGENT", "equityscope/1.0"),
		},
		News: SourceCredentials{
			APIKey: getEnv("NEWS_API_KEY", ""),
		},
	}
}

// SelfTester is implemented by source adapters that can verify their own
// credentials and connectivity.
type SelfTester interface {
	Name() string
	SelfTest(ctx context.Context) domain.APIStatus
}

// SourceStatus is the recorded outcome of one adapter self-test.
type SourceStatus struct {
	Source    string           `json:"source"`
	Status    domain.APIStatus `json:"status"`
	CheckedAt time.Time        `json:"checked_at"`
}

// StatusRegistry records the latest self-test result per source.
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[string]SourceStatus
}

// NewStatusRegistry creates a registry with every source UNTESTED.
func NewStatusRegistry(sources ...string) *StatusRegistry {
	statuses := make(map[string]SourceStatus, len(sources))
	for _, s := range sources {
		statuses[s] = SourceStatus{Source: s, Status: domain.APIUntested}
	}
	return &StatusRegistry{statuses: statuses}
}

// RunSelfTests invokes every adapter's self-test and records the results.
func (r *StatusRegistry) RunSelfTests(ctx context.Context, testers ...SelfTester) {
	for _, t := range testers {
		status := t.SelfTest(ctx)
		r.mu.Lock()
		r.statuses[t.Name()] = SourceStatus{
			Source:    t.Name(),
			Status:    status,
			CheckedAt: time.Now().UTC(),
		}
		r.mu.Unlock()
	}
}

// Get returns the recorded status for a source.
func (r *StatusRegistry) Get(source string) (SourceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[source]
	return s, ok
}

// All returns a snapshot of every recorded status.
func (r *StatusRegistry) All() []SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s)
	}
	return out
}
