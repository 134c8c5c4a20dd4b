package hub

import "sync"

// reporter delivers progress updates on its own goroutine so a slow
// callback never stalls a download. Only the latest pending update is
// kept; older ones are dropped, as are updates behind one already sent.
type reporter struct {
	ch chan Progress
	fn ProgressFunc

	mu   sync.Mutex
	high int64
}

func newReporter(fn ProgressFunc) *reporter {
	if fn == nil {
		return nil
	}
	r := &reporter{ch: make(chan Progress, 1), fn: fn}
	go func() {
		for p := range r.ch {
			r.fn(p)
		}
	}()
	return r
}

func (r *reporter) send(p Progress) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Completed < r.high {
		return
	}
	r.high = p.Completed
	for {
		select {
		case r.ch <- p:
			return
		default:
		}
		select {
		case <-r.ch:
		default:
		}
	}
}

// close must only be called once every sender has returned.
func (r *reporter) close() {
	if r != nil {
		close(r.ch)
	}
}
