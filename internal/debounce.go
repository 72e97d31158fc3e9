package internal

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer holds at most one pending one-shot timer. Arming a new timer
// always cancels the previous one first.
type Debouncer struct {
	clock clockwork.Clock

	mu      sync.Mutex
	timer   clockwork.Timer
	armedAt uint64
}

// NewDebouncer creates a Debouncer on clock (clockwork.NewRealClock() in production)
func NewDebouncer(clock clockwork.Clock) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock}
}

// Arm schedules fn after delay and returns a func that cancels it
func (d *Debouncer) Arm(delay time.Duration, fn func()) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.armedAt++
	gen := d.armedAt
	d.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		// a timer stopped too late must not fire
		if gen != d.armedAt || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if gen == d.armedAt {
			d.stopLocked()
		}
	}
}

// Cancel stops any pending timer
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Pending reports whether a timer is armed
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// InputGate applies the lookup field's error policy: acceptable edits clear
// the error and cancel a pending notice; an unacceptable submit arms a
// delayed "invalid" notice instead of flashing it immediately.
type InputGate struct {
	debouncer *Debouncer
	delay     time.Duration
	notify    func(message string)

	mu     sync.Mutex
	errMsg string
}

// NewInputGate creates a gate. notify runs on the timer when the notice fires.
func NewInputGate(debouncer *Debouncer, delay time.Duration, notify func(message string)) *InputGate {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &InputGate{debouncer: debouncer, delay: delay, notify: notify}
}

// OnEdit handles a keystroke with the field's current value
func (g *InputGate) OnEdit(value string) {
	if IsAcceptable(strings.TrimSpace(value)) {
		g.debouncer.Cancel()
		g.setError("")
	}
}

// OnSubmit returns the trimmed target and true when it may be looked up.
// Otherwise it arms the delayed notice and returns false.
func (g *InputGate) OnSubmit(value string) (string, bool) {
	q := strings.TrimSpace(value)
	if IsAcceptable(q) {
		g.debouncer.Cancel()
		g.setError("")
		return q, true
	}

	g.debouncer.Arm(g.delay, func() {
		g.setError(InvalidLookupMessage)
		if g.notify != nil {
			g.notify(InvalidLookupMessage)
		}
	})
	return "", false
}

// Error returns the message currently shown, or ""
func (g *InputGate) Error() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errMsg
}

// Close cancels any pending notice
func (g *InputGate) Close() {
	g.debouncer.Cancel()
}

func (g *InputGate) setError(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errMsg = msg
}
