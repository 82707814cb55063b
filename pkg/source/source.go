// Package source defines the Source interface for discovering domains to
// keep updated beyond the statically configured list.
package source

import (
	"context"
	"sort"
	"strings"
)

// Source discovers domains from an external system (e.g. Docker).
type Source interface {
	// Domains returns the current set of domains.
	Domains(ctx context.Context) ([]string, error)

	// AddEventHandler registers a function to be called when the source detects
	// a change (e.g. a container start or stop). The handler should trigger a
	// sweep. It may be called from a background goroutine.
	AddEventHandler(ctx context.Context, handler func())
}

// NormalizeDomain lower-cases name and strips surrounding space and a
// trailing dot.
func NormalizeDomain(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// SplitDomains splits a comma-separated list into normalized domains,
// dropping empties and duplicates while keeping first-seen order.
func SplitDomains(list string) []string {
	return Dedupe(strings.Split(list, ","))
}

// Dedupe normalizes names and removes empties and duplicates, keeping
// first-seen order.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeDomain(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Merge returns static followed by the sorted members of extra that are not
// already in static.
func Merge(static, extra []string) []string {
	out := Dedupe(static)
	seen := make(map[string]struct{}, len(out))
	for _, d := range out {
		seen[d] = struct{}{}
	}
	more := Dedupe(extra)
	sort.Strings(more)
	for _, d := range more {
		if _, ok := seen[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}
