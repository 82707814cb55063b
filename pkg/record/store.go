// Package record keeps the last-known published state of every domain for
// the life of the process.
package record

import (
	"net/netip"
	"sort"
	"sync"
	"time"
)

// DomainRecord is the published state of one domain.
type DomainRecord struct {
	Domain        string     `json:"domain"`
	LastPublished netip.Addr `json:"last_published,omitzero"`
	LastSuccess   time.Time  `json:"last_success,omitzero"`
	// Failures counts consecutive failed attempts. While it is non-zero the
	// provider may not be serving LastPublished.
	Failures       int       `json:"failures"`
	Disabled       bool      `json:"disabled,omitempty"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	LastAttempt    time.Time `json:"last_attempt,omitzero"`
}

// Synced reports whether ip is already known to be served for the domain.
func (r DomainRecord) Synced(ip netip.Addr) bool {
	return r.Failures == 0 && r.LastPublished.IsValid() && r.LastPublished == ip
}

type entry struct {
	mu  sync.Mutex
	rec DomainRecord
}

// Store is an in-memory map of domain records. Each domain has its own lock,
// so updates to different domains never contend.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry), now: time.Now}
}

func (s *Store) entry(domain string) *entry {
	s.mu.RLock()
	e, ok := s.entries[domain]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[domain]; !ok {
		e = &entry{rec: DomainRecord{Domain: domain}}
		s.entries[domain] = e
	}
	return e
}

// Get returns a copy of the record for domain, creating a zero record on
// first access.
func (s *Store) Get(domain string) DomainRecord {
	e := s.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// Update records the outcome of a publish attempt. On success ip becomes
// the last published address and the failure count is reset. On failure
// only the failure count changes.
func (s *Store) Update(domain string, ip netip.Addr, success bool) DomainRecord {
	e := s.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	now := s.now()
	e.rec.LastAttempt = now
	if success {
		e.rec.LastPublished = ip
		e.rec.LastSuccess = now
		e.rec.Failures = 0
		e.rec.LastError = ""
	} else {
		e.rec.Failures++
	}
	return e.rec
}

// SetError stores the message of the most recent failure for domain.
func (s *Store) SetError(domain string, err error) {
	e := s.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.rec.LastError = ""
		return
	}
	e.rec.LastError = err.Error()
}

// Disable marks domain as permanently failed for the rest of the run.
func (s *Store) Disable(domain, reason string) {
	e := s.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Disabled = true
	e.rec.DisabledReason = reason
}

// Snapshot returns a copy of every record, sorted by domain.
func (s *Store) Snapshot() []DomainRecord {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]DomainRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// DisabledCount returns the number of disabled domains.
func (s *Store) DisabledCount() int {
	n := 0
	for _, r := range s.Snapshot() {
		if r.Disabled {
			n++
		}
	}
	return n
}
