package supervisor

import (
	"time"

	"github.com/nvrengine/core/models"
)

// kindPool bounds the number of in-flight goroutines handling one
// message kind. A pool with Max == 0 means "run inline on the
// supervisor thread" for cheap handlers; Go's goroutine
// scheduler makes an explicit reap step unnecessary once a slot is
// released via the buffered channel below.
type kindPool struct {
	max int
	sem chan struct{}
}

func newKindPool(max int) *kindPool {
	if max <= 0 {
		return &kindPool{max: 0}
	}
	return &kindPool{max: max, sem: make(chan struct{}, max)}
}

// poolSaturationPoll and poolSaturationBudget bound the wait for a
// free slot before a message is deferred to the short retry list.
const poolSaturationPoll = 100 * time.Millisecond
const poolSaturationBudget = 1 * time.Second

// tryAcquire attempts to claim a slot, polling for up to
// poolSaturationBudget if the pool is full. It returns false if no
// slot became free in that window.
func (p *kindPool) tryAcquire() bool {
	if p.max == 0 {
		return true
	}
	deadline := time.Now().Add(poolSaturationBudget)
	for {
		select {
		case p.sem <- struct{}{}:
			return true
		default:
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poolSaturationPoll)
	}
}

func (p *kindPool) release() {
	if p.max == 0 {
		return
	}
	<-p.sem
}

// defaultPoolSizes is the per-kind dispatch table: 0 for
// cheap handlers that run inline on the supervisor thread, 32 for
// slow I/O-bound ones.
func defaultPoolSizes() map[models.MessageKind]int {
	return map[models.MessageKind]int{
		models.MsgSendEmail:    32,
		models.MsgSendPush:     32,
		models.MsgTriggerIFTTT: 32,
		models.MsgSendWebhook:  32,
	}
}
