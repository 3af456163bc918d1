package datafeed

import (
	"sync"

	sdkmath "cosmossdk.io/math"
)

// StaticFeed serves a manually set price. Used in simulation wiring and
// tests where no live stream exists.
type StaticFeed struct {
	mu    sync.RWMutex
	price sdkmath.LegacyDec
	set   bool
}

func NewStaticFeed(price sdkmath.LegacyDec) *StaticFeed {
	return &StaticFeed{price: price, set: !price.IsNil()}
}

// SetPrice moves the served price.
func (s *StaticFeed) SetPrice(price sdkmath.LegacyDec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.set = true
}

func (s *StaticFeed) LatestDexPrice() (sdkmath.LegacyDec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return sdkmath.LegacyDec{}, ErrNoPriceObserved
	}
	return s.price, nil
}
