package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/lagless/tickrelay/protocol"
)

// Delivery records one DeliverTick call as observed by a CaptureHandle.
type Delivery struct {
	Tick         uint64
	OtherIDs     []protocol.ParticipantID
	OtherIntents []byte
}

// CaptureHandle is a protocol.DeliveryHandle that records everything the
// relay sends it. Deliveries are also pushed to the Delivered channel so
// tests can block until the scheduler loop fans out.
type CaptureHandle struct {
	mu         sync.Mutex
	id         protocol.ParticipantID
	began      bool
	deliveries []Delivery

	// Delivered receives one entry per DeliverTick call.
	Delivered chan Delivery

	// BeginErr and DeliverErr, when set, are returned by the respective
	// methods to exercise failure paths.
	BeginErr   error
	DeliverErr error
}

// NewCaptureHandle creates a handle with a generously buffered Delivered
// channel so slow test readers never block the scheduler.
func NewCaptureHandle() *CaptureHandle {
	return &CaptureHandle{
		Delivered: make(chan Delivery, 64),
	}
}

// Begin implements protocol.DeliveryHandle.
func (h *CaptureHandle) Begin(id protocol.ParticipantID) error {
	if h.BeginErr != nil {
		return h.BeginErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
	h.began = true
	return nil
}

// DeliverTick implements protocol.DeliveryHandle. The payload slices are
// copied so later assertions cannot observe scheduler-side mutation.
func (h *CaptureHandle) DeliverTick(tick uint64, otherIDs []protocol.ParticipantID, otherIntents []byte) error {
	if h.DeliverErr != nil {
		return h.DeliverErr
	}

	d := Delivery{
		Tick:         tick,
		OtherIDs:     append([]protocol.ParticipantID(nil), otherIDs...),
		OtherIntents: append([]byte(nil), otherIntents...),
	}

	h.mu.Lock()
	h.deliveries = append(h.deliveries, d)
	h.mu.Unlock()

	h.Delivered <- d
	return nil
}

// Began reports whether Begin was called, and with which identifier.
func (h *CaptureHandle) Began() (protocol.ParticipantID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.began
}

// Deliveries returns a copy of all recorded deliveries in order.
func (h *CaptureHandle) Deliveries() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Delivery(nil), h.deliveries...)
}

// WaitForDelivery blocks until the handle receives a delivery or the
// timeout elapses, failing the test on timeout.
func (h *CaptureHandle) WaitForDelivery(t *testing.T, timeout time.Duration) Delivery {
	t.Helper()
	select {
	case d := <-h.Delivered:
		return d
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for tick delivery", timeout)
		return Delivery{}
	}
}

// AssertNoDelivery fails the test if the handle receives a delivery within
// the window. Used for incomplete-barrier scenarios.
func (h *CaptureHandle) AssertNoDelivery(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case d := <-h.Delivered:
		t.Fatalf("unexpected delivery for tick %d", d.Tick)
	case <-time.After(window):
	}
}
