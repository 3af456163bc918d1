package oracle

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// StaticSource is an in-memory Source with settable rounds per price type.
// The live deployment reads Chainlink-style feeds behind this interface; the
// static source backs simulation runs and tests.
type StaticSource struct {
	mu          sync.RWMutex
	description string
	rounds      map[types.PriceType]Round
}

func NewStaticSource(description string) *StaticSource {
	return &StaticSource{
		description: description,
		rounds:      make(map[types.PriceType]Round),
	}
}

func (s *StaticSource) Description() string {
	return s.description
}

// SetRound publishes a round for the given price type.
func (s *StaticSource) SetRound(priceType types.PriceType, round Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[priceType] = round
}

// SetSpotAndHistoric publishes the same timestamp for both price types,
// which is how test fixtures usually start.
func (s *StaticSource) SetSpotAndHistoric(spot, historic sdkmath.LegacyDec, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[types.SpotPrice] = Round{Price: spot, UpdatedAt: updatedAt}
	s.rounds[types.HistoricPrice] = Round{Price: historic, UpdatedAt: updatedAt}
}

func (s *StaticSource) LatestRound(priceType types.PriceType) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[priceType]
	if !ok {
		return Round{}, fmt.Errorf("%w: %s %s", ErrNoRound, s.description, priceType)
	}
	return round, nil
}
