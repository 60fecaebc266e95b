package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget paces API requests against GitHub's rate limit. Every
// request spends one unit; responses refresh the budget from the
// X-RateLimit-* and Retry-After headers.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	now       func() time.Time
	// trialSent is set once a request was let through after reset without a
	// refreshed budget.
	trialSent bool
	cooldown  time.Time
	// notifyCh is closed and replaced whenever the budget changes.
	notifyCh chan struct{}
}

func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire blocks until n requests may be made or ctx is done.
func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	switch {
	case ctx == nil:
		return errors.New("acquire: nil context")
	case n <= 0:
		return fmt.Errorf("acquire: n must be > 0 (got %d)", n)
	case b == nil:
		return errors.New("acquire: nil RequestBudget")
	case b.now == nil || b.notifyCh == nil:
		return errors.New("acquire: RequestBudget is not initialized (use NewRequestBudget)")
	}

	for ; n > 0; n-- {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

// untilChanged is a wait with no deadline: only a budget update ends it.
const untilChanged time.Duration = -1

// takeLocked spends one unit if it can. Otherwise it reports how long to wait
// before trying again.
func (b *RequestBudget) takeLocked(now time.Time) (ok bool, wait time.Duration) {
	switch {
	case now.Before(b.cooldown):
		return false, b.cooldown.Sub(now)
	case b.remaining > 0:
		b.remaining--
		return true, 0
	case now.Before(b.reset):
		return false, b.reset.Sub(now)
	case !b.trialSent:
		// Past reset with no fresh headers yet: one trial request refreshes them.
		b.trialSent = true
		return true, 0
	default:
		return false, untilChanged
	}
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		ok, wait := b.takeLocked(b.now())
		changed := b.notifyCh
		b.mu.Unlock()
		if ok {
			return nil
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if wait != untilChanged {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-changed:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return err
		}
	}
}

func (b *RequestBudget) signalLocked() {
	if b.notifyCh != nil {
		close(b.notifyCh)
	}
	b.notifyCh = make(chan struct{})
}

// UpdateFromResponse refreshes the budget from rate-limit headers.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil || b == nil || b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		until := b.now().Add(time.Duration(seconds) * time.Second)
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}

	if val, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && val >= 0 && b.remaining != val {
		b.remaining = val
		changed = true
	}

	if val, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil && val > 0 {
		if newReset := time.Unix(val, 0); !b.reset.Equal(newReset) {
			b.reset = newReset
			changed = true
		}
	}

	if changed {
		b.trialSent = false
		b.signalLocked()
	}
}
