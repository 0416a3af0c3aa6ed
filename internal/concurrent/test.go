package concurrent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/drakos74/free-model/internal/observe"
	"github.com/stretchr/testify/assert"
)

// Assertion waits for an expected number of events.
type Assertion struct {
	counter  *Counter
	expected int
}

func NewAssertion(expected int) *Assertion {
	wg := new(sync.WaitGroup)
	wg.Add(expected)
	return &Assertion{
		counter:  NewCounter(wg),
		expected: expected,
	}
}

// Expect tracks the event, it can be used as a subscriber.
func (a *Assertion) Expect(e observe.Event) {
	if !a.counter.TrackUpTo(e, a.expected) {
		panic(fmt.Sprintf("unexpected event: %+v", e))
	}
}

// Assert waits for all expected events, failing after the given timeout.
func (a *Assertion) Assert(t *testing.T, timeout time.Duration) []observe.Event {
	done := make(chan struct{})
	go func() {
		a.counter.waitGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("expected %d events, got %d", a.expected, a.counter.Get())
	}
	events := a.counter.Events()
	assert.Equal(t, a.expected, len(events))
	return events
}
