// Package proxyring maintains a pool of egress proxies with per-entry
// health state. Entries are borrowed for one request at a time and flagged,
// never removed, so post-run diagnostics can report which endpoints failed.
package proxyring

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
)

// failureThreshold is the number of consecutive failures after which an
// entry is excluded from rotation for the rest of the run.
const failureThreshold = 3

// Entry is one proxy endpoint plus its mutable health state. Health state
// is owned exclusively by the Ring.
type Entry struct {
	URL *url.URL

	failures int
	unusable bool
}

// Status is a read-only snapshot of one entry for diagnostics.
type Status struct {
	URL      string `json:"url"`
	Failures int    `json:"failures"`
	Usable   bool   `json:"usable"`
}

// Ring hands out proxies in round-robin order, skipping entries that have
// exceeded the failure threshold.
type Ring struct {
	mu      sync.Mutex
	entries []*Entry
	cursor  int
	current *Entry
}

// New parses the configured proxy URLs into a ring. An empty list yields a
// ring that always answers "direct connection".
func New(raw []string) (*Ring, error) {
	r := &Ring{}
	for _, s := range raw {
		parsed, err := url.Parse(s)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("parse proxy %q: invalid URL", s)
		}
		r.entries = append(r.entries, &Entry{URL: parsed})
	}
	return r, nil
}

// Next borrows the next usable entry in round-robin order. It returns nil
// when the pool is empty or every entry is unusable, meaning the caller
// should connect directly.
func (r *Ring) Next() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < len(r.entries); i++ {
		e := r.entries[r.cursor]
		r.cursor = (r.cursor + 1) % len(r.entries)
		if !e.unusable {
			r.current = e
			return e
		}
	}
	r.current = nil
	return nil
}

// Report records the outcome of one request made through entry. Success
// resets the consecutive-failure count; a failure past the threshold marks
// the entry unusable for the remainder of the run.
func (r *Ring) Report(entry *Entry, success bool) {
	if entry == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if success {
		entry.failures = 0
		return
	}
	entry.failures++
	if entry.failures >= failureThreshold && !entry.unusable {
		entry.unusable = true
		slog.Warn("proxy excluded from rotation",
			slog.String("proxy", entry.URL.Host),
			slog.Int("failures", entry.failures),
		)
	}
}

// ProxyFunc adapts the ring to the colly/http.Transport proxy signature,
// serving whichever entry is currently borrowed. A nil URL means a direct
// connection.
func (r *Ring) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.current == nil {
			return nil, nil
		}
		return r.current.URL, nil
	}
}

// Size reports the number of configured entries.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the health state of every entry for post-run
// diagnostics.
func (r *Ring) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Status{
			URL:      e.URL.String(),
			Failures: e.failures,
			Usable:   !e.unusable,
		})
	}
	return out
}
