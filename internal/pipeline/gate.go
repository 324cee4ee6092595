package pipeline

import (
	"strings"
	"sync"
	"time"
)

type gateEntry struct {
	lastAttempt time.Time
	failures    int
}

// FetchGate limits how often each area may hit its sources. After n
// consecutive failures the wait grows to minInterval * 2^min(n, maxExponent).
// One gate belongs to one coordinator.
type FetchGate struct {
	mu          sync.Mutex
	minInterval time.Duration
	maxExponent int
	entries     map[string]*gateEntry
}

func NewFetchGate(minInterval time.Duration, maxExponent int) *FetchGate {
	if maxExponent < 0 {
		maxExponent = 0
	}
	return &FetchGate{
		minInterval: minInterval,
		maxExponent: maxExponent,
		entries:     make(map[string]*gateEntry),
	}
}

// Allow reports whether area may fetch at now, and otherwise how long is
// left until it may.
func (g *FetchGate) Allow(area string, now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[strings.ToUpper(area)]
	if !ok {
		return true, 0
	}
	elapsed := now.Sub(e.lastAttempt)
	wait := g.wait(e.failures)
	if elapsed >= wait || elapsed < 0 {
		return true, 0
	}
	return false, wait - elapsed
}

// Record notes a fetch attempt and its outcome.
func (g *FetchGate) Record(area string, now time.Time, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := strings.ToUpper(area)
	e, ok := g.entries[key]
	if !ok {
		e = &gateEntry{}
		g.entries[key] = e
	}
	e.lastAttempt = now
	if success {
		e.failures = 0
	} else {
		e.failures++
	}
}

// Failures returns the consecutive failure count for area.
func (g *FetchGate) Failures(area string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[strings.ToUpper(area)]; ok {
		return e.failures
	}
	return 0
}

// Reset forgets everything about area.
func (g *FetchGate) Reset(area string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, strings.ToUpper(area))
}

func (g *FetchGate) wait(failures int) time.Duration {
	exp := failures
	if exp > g.maxExponent {
		exp = g.maxExponent
	}
	return g.minInterval * time.Duration(1<<uint(exp))
}
