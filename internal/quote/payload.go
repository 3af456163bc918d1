/*

This file contains the encoded quote payload. Off-chain callers treat the
bytes as opaque and replay them unmodified; the vault's invest/exit entry
points decode and enforce the embedded deadline and minimum amounts.

*/

package quote

import (
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

type investPayload struct {
	QuoteID         string             `json:"quote_id"`
	FromToken       types.TokenAddress `json:"from_token"`
	FromTokenAmount string             `json:"from_token_amount"`
	FeeBps          uint64             `json:"fee_bps"`
	SharePrice      string             `json:"share_price"` // snapshot at quote time
	MinSharesOut    string             `json:"min_shares_out"`
	DeadlineUnixMs  int64              `json:"deadline_unix_ms"`
}

type exitPayload struct {
	QuoteID          string             `json:"quote_id"`
	ToToken          types.TokenAddress `json:"to_token"`
	InvestmentAmount string             `json:"investment_amount"`
	FeeBps           uint64             `json:"fee_bps"`
	SharePrice       string             `json:"share_price"`
	MinAmountOut     string             `json:"min_amount_out"`
	DeadlineUnixMs   int64              `json:"deadline_unix_ms"`
}

func encodeInvestPayload(p investPayload) ([]byte, error) {
	return json.Marshal(p)
}

func encodeExitPayload(p exitPayload) ([]byte, error) {
	return json.Marshal(p)
}

// InvestOrder is the decoded, validated form of a replayed invest payload.
type InvestOrder struct {
	QuoteID         string
	FromToken       types.TokenAddress
	FromTokenAmount sdkmath.LegacyDec
	FeeBps          uint64
	MinSharesOut    sdkmath.LegacyDec
	Deadline        time.Time
}

// ExitOrder is the decoded, validated form of a replayed exit payload.
type ExitOrder struct {
	QuoteID          string
	ToToken          types.TokenAddress
	InvestmentAmount sdkmath.LegacyDec
	FeeBps           uint64
	MinAmountOut     sdkmath.LegacyDec
	Deadline         time.Time
}

// DecodeInvestPayload decodes replayed invest quote data and rejects it if
// the embedded deadline has passed.
func DecodeInvestPayload(data []byte, now time.Time) (*InvestOrder, error) {
	var p investPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadQuoteData, err)
	}
	deadline := time.UnixMilli(p.DeadlineUnixMs)
	if now.After(deadline) {
		return nil, fmt.Errorf("%w: deadline %s", ErrQuoteExpired, deadline)
	}
	amount, err := sdkmath.LegacyNewDecFromStr(p.FromTokenAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: from token amount: %s", ErrBadQuoteData, err)
	}
	minShares, err := sdkmath.LegacyNewDecFromStr(p.MinSharesOut)
	if err != nil {
		return nil, fmt.Errorf("%w: min shares: %s", ErrBadQuoteData, err)
	}
	return &InvestOrder{
		QuoteID:         p.QuoteID,
		FromToken:       p.FromToken,
		FromTokenAmount: amount,
		FeeBps:          p.FeeBps,
		MinSharesOut:    minShares,
		Deadline:        deadline,
	}, nil
}

// DecodeExitPayload decodes replayed exit quote data and rejects it if
// the embedded deadline has passed.
func DecodeExitPayload(data []byte, now time.Time) (*ExitOrder, error) {
	var p exitPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadQuoteData, err)
	}
	deadline := time.UnixMilli(p.DeadlineUnixMs)
	if now.After(deadline) {
		return nil, fmt.Errorf("%w: deadline %s", ErrQuoteExpired, deadline)
	}
	shares, err := sdkmath.LegacyNewDecFromStr(p.InvestmentAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: investment amount: %s", ErrBadQuoteData, err)
	}
	minOut, err := sdkmath.LegacyNewDecFromStr(p.MinAmountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: min amount out: %s", ErrBadQuoteData, err)
	}
	return &ExitOrder{
		QuoteID:          p.QuoteID,
		ToToken:          p.ToToken,
		InvestmentAmount: shares,
		FeeBps:           p.FeeBps,
		MinAmountOut:     minOut,
		Deadline:         deadline,
	}, nil
}
