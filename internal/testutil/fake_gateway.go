package testutil

import (
	"context"
	"sync"

	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/gateway"
	"github.com/subcycle/subcycle/internal/types"
)

var _ gateway.Client = (*FakeGateway)(nil)

// FakeGateway is a scriptable payment processor for tests. By default every
// charge succeeds; FailNext and FailAll flip it into decline mode.
type FakeGateway struct {
	mu       sync.Mutex
	failNext int
	failAll  bool

	// Charges records every accepted charge in order
	Charges []gateway.ChargeRequest
	// Declined records every declined charge in order
	Declined []gateway.ChargeRequest
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// FailNext makes the next n charges decline.
func (g *FakeGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

// FailAll makes every charge decline until SucceedAll is called.
func (g *FakeGateway) FailAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAll = true
}

// SucceedAll restores the default accept-everything behavior.
func (g *FakeGateway) SucceedAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAll = false
	g.failNext = 0
}

func (g *FakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failAll || g.failNext > 0 {
		if g.failNext > 0 {
			g.failNext--
		}
		g.Declined = append(g.Declined, req)
		return nil, ierr.NewError("card declined").
			WithHint("The payment was declined by the processor").
			Mark(ierr.ErrPaymentFailed)
	}

	g.Charges = append(g.Charges, req)
	return &gateway.ChargeResult{
		GatewayRef: types.GenerateUUIDWithPrefix("ch"),
	}, nil
}

// ChargeCount returns how many charges were accepted.
func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Charges)
}

// Clear resets recorded charges and failure modes.
func (g *FakeGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = 0
	g.failAll = false
	g.Charges = nil
	g.Declined = nil
}
