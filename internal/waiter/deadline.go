package waiter

import (
	"context"
	"math"
	"time"
)

// Deadline reports how much of the invocation's wall-clock budget is left.
type Deadline interface {
	Remaining() time.Duration
}

type deadlineAt struct {
	at  time.Time
	now func() time.Time
}

func (d deadlineAt) Remaining() time.Duration {
	return d.at.Sub(d.now())
}

// At is a deadline at a fixed point in time.
func At(t time.Time) Deadline {
	return deadlineAt{at: t, now: time.Now}
}

type noDeadline struct{}

func (noDeadline) Remaining() time.Duration {
	return time.Duration(math.MaxInt64)
}

// FromContext uses ctx's deadline. The Lambda runtime sets one on every
// invocation; without one the budget is unlimited.
func FromContext(ctx context.Context) Deadline {
	if at, ok := ctx.Deadline(); ok {
		return At(at)
	}
	return noDeadline{}
}

// DeadlineFunc adapts a function to the Deadline interface.
type DeadlineFunc func() time.Duration

func (f DeadlineFunc) Remaining() time.Duration {
	return f()
}
