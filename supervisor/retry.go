package supervisor

import (
	"sort"
	"sync"

	"github.com/nvrengine/core/models"
)

// retryEntry is one scheduled redelivery: RetryAtMs is when it becomes
// eligible, Attempt is the 0-based attempt count already made.
type retryEntry struct {
	RetryAtMs int64
	Attempt   int
	Msg       models.Message
}

// retryList is the sorted list of pending retries: every handler
// returns an optional retryAt, and the supervisor
// wakes its main loop at the earliest one.
type retryList struct {
	mu      sync.Mutex
	entries []retryEntry
}

func newRetryList() *retryList { return &retryList{} }

// Schedule inserts e, keeping the list sorted by RetryAtMs.
func (r *retryList) Schedule(e retryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].RetryAtMs >= e.RetryAtMs })
	r.entries = append(r.entries, retryEntry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
}

// DrainReady removes and returns every entry whose RetryAtMs has
// passed as of nowMs.
func (r *retryList) DrainReady(nowMs int64) []retryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := 0
	for i < len(r.entries) && r.entries[i].RetryAtMs <= nowMs {
		i++
	}
	ready := append([]retryEntry{}, r.entries[:i]...)
	r.entries = r.entries[i:]
	return ready
}

// NextWake reports the earliest scheduled RetryAtMs, or ok=false if
// the list is empty.
func (r *retryList) NextWake() (ms int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return 0, false
	}
	return r.entries[0].RetryAtMs, true
}

func (r *retryList) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
