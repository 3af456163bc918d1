/*

This file contains the quote types produced by the quote engine. A quote is
a bounded, fee-adjusted projection of an invest or exit, plus an opaque
encoded payload that must be replayed unmodified within the deadline.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// InvestQuote is the off-chain facing result of a deposit quote request.
type InvestQuote struct {
	QuoteID   string       `json:"quote_id"`
	FromToken TokenAddress `json:"from_token"`

	FromTokenAmount sdkmath.LegacyDec `json:"from_token_amount"`

	// Shares expected at current share price, net of the entry fee.
	ExpectedInvestmentAmount sdkmath.LegacyDec `json:"expected_investment_amount"`
	// ExpectedInvestmentAmount reduced by the caller's slippage tolerance.
	MinInvestmentAmount sdkmath.LegacyDec `json:"min_investment_amount"`

	SlippageBps uint64    `json:"slippage_bps"`
	FeeBps      []uint64  `json:"fee_bps"`
	Deadline    time.Time `json:"deadline"`

	// Opaque replay payload. Callers pass it back verbatim to InvestWithToken.
	EncodedQuoteData []byte `json:"encoded_quote_data"`
}

// ExitQuote is the mirror of InvestQuote for share redemptions.
type ExitQuote struct {
	QuoteID string       `json:"quote_id"`
	ToToken TokenAddress `json:"to_token"`

	InvestmentAmount sdkmath.LegacyDec `json:"investment_amount"` // shares in

	ExpectedToTokenAmount sdkmath.LegacyDec `json:"expected_to_token_amount"`
	MinToTokenAmount      sdkmath.LegacyDec `json:"min_to_token_amount"`

	SlippageBps uint64    `json:"slippage_bps"`
	FeeBps      []uint64  `json:"fee_bps"`
	Deadline    time.Time `json:"deadline"`

	EncodedQuoteData []byte `json:"encoded_quote_data"`
}
