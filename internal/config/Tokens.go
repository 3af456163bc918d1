/*

This file contains the well-known tokens the simulation wiring and the
price registry bootstrap use. Addresses are mainnet Ethereum.

*/

package config

import (
	"github.com/origami-labs/lovm/internal/types"
)

var (
	TokenWETH = types.Token{
		Symbol:   "WETH",
		Address:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Decimals: 18,
	}
	TokenWSTETH = types.Token{
		Symbol:   "wstETH",
		Address:  "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0",
		Decimals: 18,
	}
	TokenSTETH = types.Token{
		Symbol:   "stETH",
		Address:  "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84",
		Decimals: 18,
	}
	TokenUSDC = types.Token{
		Symbol:   "USDC",
		Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals: 6,
	}
	TokenDAI = types.Token{
		Symbol:   "DAI",
		Address:  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		Decimals: 18,
	}

	// KnownTokens maps symbols to their token definitions for lookup at
	// startup. Entries not listed here must be registered explicitly.
	KnownTokens = map[string]types.Token{
		TokenWETH.Symbol:   TokenWETH,
		TokenWSTETH.Symbol: TokenWSTETH,
		TokenSTETH.Symbol:  TokenSTETH,
		TokenUSDC.Symbol:   TokenUSDC,
		TokenDAI.Symbol:    TokenDAI,
	}
)
