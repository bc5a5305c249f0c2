// Package router implements the dedup SeenSet and the debounced
// activity-refresh trigger state machine from spec.md §4.6, §9: an
// explicit `{timerArmed, inFlight, pending, lastFetchedAt}` state machine
// guarded by a mutex — the nearest analog in the teacher's codebase is
// strategy.FlowTracker's mutex-guarded rolling window, generalized here
// from "rolling fill history" to "pending-refresh coalescing."
package router

import (
	"sync"
	"time"
)

// AssetMeta is the per-asset telemetry metadata attached to a pending
// refresh trigger (spec.md §3 PendingRefresh).
type AssetMeta struct {
	EventTsMs int64
	RecvTsMs  int64
}

// SeenSet is the set of trade-identity keys already processed. Safe for
// concurrent use.
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSeenSet creates an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// InsertIfAbsent inserts key and returns true if it was newly inserted,
// false if it was already present (and therefore must not be dispatched
// again — spec.md §3 invariant 1).
func (s *SeenSet) InsertIfAbsent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Router owns PendingRefresh and the debounce/in-flight state machine.
// runRefresh is supplied by the caller (the engine's runActivityRefresh)
// and is invoked at most once at a time, serialized by Router itself.
type Router struct {
	mu sync.Mutex

	pending       map[string]AssetMeta // PendingRefresh: asset -> meta
	timerArmed    bool
	inFlight      bool
	lastFetchedAt time.Time

	debounce time.Duration
	cooldown time.Duration // minAssetRefreshMs, per-asset

	lastTriggerAt map[string]time.Time // per-asset cooldown tracking

	timer *time.Timer

	runRefresh func()
}

// New creates a Router. debounce is refreshDebounceMs, cooldown is
// minAssetRefreshMs. runRefresh is called (on its own goroutine, via
// time.AfterFunc) whenever the debounce timer fires; it must eventually
// call FetchDone.
func New(debounce, cooldown time.Duration, runRefresh func()) *Router {
	return &Router{
		pending:       make(map[string]AssetMeta),
		debounce:      debounce,
		cooldown:      cooldown,
		lastTriggerAt: make(map[string]time.Time),
		runRefresh:    runRefresh,
	}
}

// RequestActivityRefresh implements spec.md §4.6 step 1–3: adds asset to
// PendingRefresh (storing meta only if absent), and arms a debounce timer
// if one is not already armed. Returns false if the per-asset cooldown
// has not elapsed, in which case the trigger is dropped entirely (this
// engine treats a too-frequent WS ping as redundant rather than queueing
// it, keeping cooldown enforcement a simple reject).
func (r *Router) RequestActivityRefresh(asset string, meta AssetMeta) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if last, ok := r.lastTriggerAt[asset]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.lastTriggerAt[asset] = now

	if _, ok := r.pending[asset]; !ok {
		r.pending[asset] = meta
	}

	if r.timerArmed {
		return true
	}

	delay := r.debounce - now.Sub(r.lastFetchedAt)
	if delay < 0 {
		delay = 0
	}
	r.timerArmed = true
	r.timer = time.AfterFunc(delay, r.timerFire)
	return true
}

func (r *Router) timerFire() {
	r.mu.Lock()
	r.timerArmed = false
	if r.inFlight {
		// a fetch is already running; it will re-arm on completion if
		// PendingRefresh is still non-empty (step 4).
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	r.runRefresh()
}

// Snapshot atomically clears PendingRefresh and returns the focus-asset
// set and per-asset meta, per spec.md §4.6 step 2. Called by the refresh
// runner after it has obtained the activity payload (cached or fresh).
func (r *Router) Snapshot() map[string]AssetMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.pending
	r.pending = make(map[string]AssetMeta)
	return snap
}

// FetchDone marks the in-flight fetch complete, records lastFetchedAt,
// and — if new triggers arrived during the fetch (PendingRefresh
// non-empty) — immediately re-arms a refresh (spec.md §4.6 step 4).
func (r *Router) FetchDone() {
	r.mu.Lock()
	r.inFlight = false
	r.lastFetchedAt = time.Now()
	rearm := len(r.pending) > 0 && !r.timerArmed
	if rearm {
		r.timerArmed = true
		r.timer = time.AfterFunc(0, r.timerFire)
	}
	r.mu.Unlock()
}

// LastFetchedAt returns the time FetchDone last ran, which also sets the
// debounce delay of the next trigger.
func (r *Router) LastFetchedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFetchedAt
}

// Stop cancels any armed timer, used during shutdown.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}
