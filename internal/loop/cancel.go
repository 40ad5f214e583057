package loop

import "sync/atomic"

// Cancel is a cooperative cancellation token shared between the caller and a
// running turn. The loop reads it once at the top of each iteration; setting
// it mid-call takes effect only after the current model call returns.
type Cancel struct {
	flag atomic.Bool
}

// NewCancel returns an unset token.
func NewCancel() *Cancel {
	return &Cancel{}
}

// Set requests cancellation. Safe to call from any goroutine, repeatedly.
func (c *Cancel) Set() {
	if c != nil {
		c.flag.Store(true)
	}
}

// Cancelled reports whether cancellation was requested. A nil token is
// never cancelled.
func (c *Cancel) Cancelled() bool {
	return c != nil && c.flag.Load()
}
