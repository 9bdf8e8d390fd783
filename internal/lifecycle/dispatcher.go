package lifecycle

import "context"

// transition is what a state handler asks the dispatcher to do after
// processing an event.
type transition int

const (
	stay transition = iota
	toRunning
	quitMachine
)

// stateHandler is the tagged-variant state of §9's design note: a small
// interface implemented by idleState and runningState. The parent link is
// the lifecycle's own l.idle field: dispatch hands an event runningState
// leaves unhandled to l.idle. Exactly one of these is ever "current" (I1).
type stateHandler interface {
	name() StateName
	onEnter(l *SoftApLifecycle)
	onExit(l *SoftApLifecycle)
	handle(l *SoftApLifecycle, ev event) (handled bool, t transition)
}

// run is the dispatcher goroutine: the single logical thread of control
// that owns the mailbox and serializes every handler, timer fire, and
// driver callback onto it (§5).
func (l *SoftApLifecycle) run(ctx context.Context) {
	defer close(l.done)

	l.ctx = ctx
	l.current = l.idle
	l.idle.onEnter(l)
	l.refreshPublicState()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-l.mailbox:
			if !ok {
				return
			}
			l.dispatch(ev)
			if l.terminated {
				return
			}
		}
	}
}

// dispatch runs one event through the current state, falling through to
// Idle when Running doesn't handle it (§4.1: "Unhandled events in Running
// fall through to Idle").
func (l *SoftApLifecycle) dispatch(ev event) {
	defer l.refreshPublicState()

	if ev.kind == evDumpRequest {
		ev.dumpReply <- l.snapshot()
		return
	}

	handled, t := l.current.handle(l, ev)
	if !handled && l.current == l.running {
		_, t = l.idle.handle(l, ev)
	}

	switch t {
	case stay:
		return
	case toRunning:
		l.current.onExit(l)
		l.current = l.running
		l.running.onEnter(l)
	case quitMachine:
		// The terminal quit of §4.1: run the current state's exit actions
		// (Running's full teardown when quitting from Running), then let
		// run() return and dispose the lifecycle.
		l.current.onExit(l)
		l.terminated = true
	}
}

// post enqueues an event onto the mailbox. Called from public façade
// methods (producer side) and from driver/timer callbacks, never executed
// inline against lifecycle state (§5).
func (l *SoftApLifecycle) post(ev event) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.mailbox <- ev:
	case <-l.done:
	}
}
