package invoke

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

type CallState int32

const (
	StateReceived CallState = iota
	StateResolving
	StateDispatched
	StateSyncAnswered
	StateAsyncAnswered
	StateResolutionFailed
)

func (s CallState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateResolving:
		return "resolving"
	case StateDispatched:
		return "dispatched"
	case StateSyncAnswered:
		return "sync-answered"
	case StateAsyncAnswered:
		return "async-answered"
	case StateResolutionFailed:
		return "resolution-failed"
	default:
		return fmt.Sprintf("CallState(%d)", int32(s))
	}
}

// Call holds the delivery guards of one invocation.
//
// The sync outcome is delivered at most once, whichever of AnswerSync and
// FailSync wins. Async parts 1..N (N = len(asyncResults)) are each
// delivered at most once, and FailAsync ends the async side: it is
// delivered only while budget remains and then exhausts it. Every attempt
// that loses is logged and dropped.
type Call struct {
	Invocation *Invocation

	log     *slog.Logger
	metrics DispatchMetrics
	state   atomic.Int32

	syncDone   atomic.Bool
	syncResult ResultConsumer
	syncError  ErrorConsumer

	remaining    atomic.Int32
	filled       []atomic.Bool
	asyncResults []ResultConsumer
	asyncError   AsyncErrorConsumer
}

// NewCall prepares the guards for inv. Nil consumers discard.
func NewCall(
	inv *Invocation,
	syncResult ResultConsumer,
	syncError ErrorConsumer,
	asyncResults []ResultConsumer,
	asyncError AsyncErrorConsumer,
) *Call {
	if syncResult == nil {
		syncResult = func(Result) {}
	}
	if syncError == nil {
		syncError = func(*Error) {}
	}
	if asyncError == nil {
		asyncError = func(int, *Error) {}
	}
	c := &Call{
		Invocation:   inv,
		log:          slog.Default(),
		metrics:      NopDispatchMetrics(),
		syncResult:   syncResult,
		syncError:    syncError,
		filled:       make([]atomic.Bool, len(asyncResults)),
		asyncResults: asyncResults,
		asyncError:   asyncError,
	}
	c.remaining.Store(int32(len(asyncResults)))
	return c
}

func (c *Call) State() CallState { return CallState(c.state.Load()) }

// AsyncParts returns N, the number of async parts the caller accepts.
func (c *Call) AsyncParts() int { return len(c.asyncResults) }

// Remaining returns the unused async budget.
func (c *Call) Remaining() int { return int(c.remaining.Load()) }

func (c *Call) AnswerSync(r Result) bool {
	if !c.syncDone.CompareAndSwap(false, true) {
		c.dropped("sync", 0)
		return false
	}
	c.advance(StateSyncAnswered)
	c.syncResult(r)
	return true
}

func (c *Call) FailSync(e *Error) bool {
	if !c.syncDone.CompareAndSwap(false, true) {
		c.dropped("sync", 0)
		return false
	}
	c.advance(StateSyncAnswered)
	c.syncError(e)
	return true
}

// AnswerAsync delivers r as async part (1-based).
func (c *Call) AnswerAsync(part int, r Result) bool {
	if part < 1 || part > len(c.filled) {
		c.dropped("async", part)
		return false
	}
	if !c.filled[part-1].CompareAndSwap(false, true) || !c.takeBudget() {
		c.dropped("async", part)
		return false
	}
	c.advance(StateAsyncAnswered)
	c.asyncResults[part-1](r)
	return true
}

// FailAsync delivers the terminal async error in place of part and
// exhausts the async budget.
func (c *Call) FailAsync(part int, e *Error) bool {
	if c.remaining.Swap(0) <= 0 {
		c.dropped("async", part)
		return false
	}
	c.advance(StateAsyncAnswered)
	c.asyncError(part, e)
	return true
}

// nextPart returns the lowest async part not yet filled.
func (c *Call) nextPart() int {
	for i := range c.filled {
		if !c.filled[i].Load() {
			return i + 1
		}
	}
	return len(c.filled) + 1
}

func (c *Call) takeBudget() bool {
	for {
		r := c.remaining.Load()
		if r <= 0 {
			return false
		}
		if c.remaining.CompareAndSwap(r, r-1) {
			return true
		}
	}
}

// advance moves the state forward; ResolutionFailed is terminal.
func (c *Call) advance(to CallState) {
	for {
		cur := c.state.Load()
		if CallState(cur) == StateResolutionFailed || cur >= int32(to) {
			return
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

func (c *Call) dropped(channel string, part int) {
	c.metrics.DeliveryDropped(channel)
	c.log.Warn("late delivery dropped",
		slog.String("channel", channel),
		slog.Int("part", part),
		slog.String("state", c.State().String()),
	)
}
