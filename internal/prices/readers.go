package prices

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// StaticErc4626 is an in-memory Erc4626Reader with a settable share price.
// Live deployments read convertToAssets from the vault contract behind the
// same interface.
type StaticErc4626 struct {
	mu             sync.RWMutex
	asset          types.TokenAddress
	assetsPerShare sdkmath.LegacyDec
}

func NewStaticErc4626(asset types.TokenAddress, assetsPerShare sdkmath.LegacyDec) *StaticErc4626 {
	return &StaticErc4626{asset: asset, assetsPerShare: assetsPerShare}
}

func (v *StaticErc4626) ConvertToAssets(shares sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return shares.MulTruncate(v.assetsPerShare), nil
}

func (v *StaticErc4626) Asset() types.TokenAddress {
	return v.asset
}

// SetAssetsPerShare reprices the vault share, e.g. as yield accrues.
func (v *StaticErc4626) SetAssetsPerShare(assetsPerShare sdkmath.LegacyDec) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.assetsPerShare = assetsPerShare
}

// StaticStakedToken is an in-memory StakedTokenReader with a settable
// exchange rate, e.g. stETH per wstETH.
type StaticStakedToken struct {
	mu   sync.RWMutex
	rate sdkmath.LegacyDec
}

func NewStaticStakedToken(rate sdkmath.LegacyDec) *StaticStakedToken {
	return &StaticStakedToken{rate: rate}
}

func (s *StaticStakedToken) ExchangeRate() (sdkmath.LegacyDec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate, nil
}

func (s *StaticStakedToken) SetExchangeRate(rate sdkmath.LegacyDec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
}
