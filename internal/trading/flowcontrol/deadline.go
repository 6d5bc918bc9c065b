package flowcontrol

import (
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// Order lifecycle phases tracked between submission and completion.
type Phase int

const (
	PhaseSubmit Phase = iota
	PhaseAck
	PhaseFill
)

// Timeout reasons reported by DueToExpire.
const (
	ReasonAckTimeout  = "ack-timeout"
	ReasonFillTimeout = "fill-timeout"
)

type deadlineEntry struct {
	ackDeadline  time.Time
	fillDeadline time.Time
	phase        Phase
}

// DeadlineTracker watches submitted orders for missing acks and stalled fills.
// Deadlines are fixed at submission; phase transitions never extend them. The
// tracker is advisory: DueToExpire reports, the caller cancels.
type DeadlineTracker struct {
	mu          sync.Mutex
	ackTimeout  time.Duration
	fillTimeout time.Duration
	maxEntries  int
	entries     map[string]deadlineEntry
	byDeadline  *btree.Map[string, string] // encoded fill deadline -> order id
	now         func() time.Time
}

// NewDeadlineTracker creates a tracker with the given ack and fill timeouts.
func NewDeadlineTracker(ackTimeout, fillTimeout time.Duration, maxEntries int) *DeadlineTracker {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &DeadlineTracker{
		ackTimeout:  ackTimeout,
		fillTimeout: fillTimeout,
		maxEntries:  maxEntries,
		entries:     make(map[string]deadlineEntry),
		byDeadline:  btree.NewMap[string, string](32),
		now:         time.Now,
	}
}

// Reset drops every tracked order.
func (t *DeadlineTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]deadlineEntry)
	t.byDeadline = btree.NewMap[string, string](32)
}

// OnSubmit starts tracking an order, fixing both deadlines from now.
func (t *DeadlineTracker) OnSubmit(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[orderID]; ok {
		t.byDeadline.Delete(deadlineKey(prev.fillDeadline, orderID))
	}
	now := t.now()
	e := deadlineEntry{
		ackDeadline:  now.Add(t.ackTimeout),
		fillDeadline: now.Add(t.fillTimeout),
		phase:        PhaseSubmit,
	}
	t.entries[orderID] = e
	t.byDeadline.Set(deadlineKey(e.fillDeadline, orderID), orderID)

	for len(t.entries) > t.maxEntries {
		_, victim, ok := t.byDeadline.PopMin()
		if !ok {
			break
		}
		delete(t.entries, victim)
	}
}

// OnAck advances the order into the ack phase. Deadlines are not reset.
func (t *DeadlineTracker) OnAck(orderID string) {
	t.advance(orderID, PhaseAck)
}

// OnFillProgress advances the order into the fill phase. Deadlines are not
// reset.
func (t *DeadlineTracker) OnFillProgress(orderID string) {
	t.advance(orderID, PhaseFill)
}

func (t *DeadlineTracker) advance(orderID string, phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[orderID]
	if !ok || e.phase >= phase {
		return
	}
	e.phase = phase
	t.entries[orderID] = e
}

// DueToExpire returns order ids past a deadline at now, mapped to
// ReasonAckTimeout (never acked) or ReasonFillTimeout (acked but not
// completed).
func (t *DeadlineTracker) DueToExpire(now time.Time) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	due := make(map[string]string)
	for id, e := range t.entries {
		switch {
		case e.phase == PhaseSubmit && now.After(e.ackDeadline):
			due[id] = ReasonAckTimeout
		case e.phase != PhaseSubmit && now.After(e.fillDeadline):
			due[id] = ReasonFillTimeout
		}
	}
	return due
}

// Done stops tracking an order.
func (t *DeadlineTracker) Done(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[orderID]
	if !ok {
		return
	}
	delete(t.entries, orderID)
	t.byDeadline.Delete(deadlineKey(e.fillDeadline, orderID))
}

// Len returns the number of tracked orders.
func (t *DeadlineTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
