/*

This is a custom type for tokens which contains the state needed for pricing
and decimal scaling across the vault, quote and rebalance paths.

*/

package types

// TokenAddress is the checksummed hex address of an ERC-20 token.
type TokenAddress string

type Token struct {
	Symbol   string       `json:"symbol"`   // e.g., "wstETH"
	Address  TokenAddress `json:"address"`  // e.g., "0x7f39C5..."
	Decimals int          `json:"decimals"` // e.g., 18 for wstETH, 6 for USDC
}

// PriceType selects which oracle observation a price read uses.
type PriceType int

const (
	SpotPrice PriceType = iota
	HistoricPrice
)

func (p PriceType) String() string {
	if p == HistoricPrice {
		return "HISTORIC_PRICE"
	}
	return "SPOT_PRICE"
}

// RoundingMode controls the direction of truncation in derived conversions.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)
