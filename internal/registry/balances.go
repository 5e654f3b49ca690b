package registry

import "sync"

// Adjustments tracks local token balance corrections per identity. The
// ledger does not move tokens on a purchase, so the portal records the
// transfer itself: the buyer gains the listed amount and the seller loses it.
// Reconciliation never clears them.
type Adjustments struct {
	mu     sync.RWMutex
	deltas map[string]int64
}

func NewAdjustments() *Adjustments {
	return &Adjustments{deltas: make(map[string]int64)}
}

// RecordPurchase moves amount from seller to buyer.
func (a *Adjustments) RecordPurchase(buyer, seller string, amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deltas[buyer] += int64(amount)
	a.deltas[seller] -= int64(amount)
}

// For returns the net adjustment of identity.
func (a *Adjustments) For(identity string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deltas[identity]
}

// All returns a copy of every non-zero adjustment.
func (a *Adjustments) All() map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int64, len(a.deltas))
	for id, d := range a.deltas {
		if d != 0 {
			out[id] = d
		}
	}
	return out
}
