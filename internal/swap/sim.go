package swap

import (
	"encoding/json"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// simSwapData is the payload a SimulatedRouter quote emits and its Execute
// replays. The executor treats it as opaque bytes.
type simSwapData struct {
	SellToken types.TokenAddress `json:"sell_token"`
	BuyToken  types.TokenAddress `json:"buy_token"`
	Price     string             `json:"price"` // buy token per sell token
}

// SimulatedRouter fills swaps between one token pair at a configurable
// execution price. The price it fills at is the price embedded in the quote
// it issued, so a stale quote executes at the quoted price, mirroring how
// aggregator calldata pins a route.
type SimulatedRouter struct {
	mu        sync.RWMutex
	id        string
	sellToken types.TokenAddress
	buyToken  types.TokenAddress
	// price is buy token received per sell token spent.
	price sdkmath.LegacyDec
}

func NewSimulatedRouter(id string, sellToken, buyToken types.TokenAddress, price sdkmath.LegacyDec) *SimulatedRouter {
	return &SimulatedRouter{id: id, sellToken: sellToken, buyToken: buyToken, price: price}
}

func (r *SimulatedRouter) ID() string {
	return r.id
}

// SetPrice moves the execution price for subsequently issued quotes.
func (r *SimulatedRouter) SetPrice(price sdkmath.LegacyDec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.price = price
}

// Quote returns the expected output for sellAmount and the calldata that
// replays this fill.
func (r *SimulatedRouter) Quote(sellAmount sdkmath.LegacyDec) (sdkmath.LegacyDec, []byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, err := json.Marshal(simSwapData{
		SellToken: r.sellToken,
		BuyToken:  r.buyToken,
		Price:     r.price.String(),
	})
	if err != nil {
		return sdkmath.LegacyDec{}, nil, err
	}
	return sellAmount.MulTruncate(r.price), data, nil
}

// QuotePrice returns the current execution price (buy per sell).
func (r *SimulatedRouter) QuotePrice() sdkmath.LegacyDec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.price
}

func (r *SimulatedRouter) Execute(swapData []byte, sellAmount sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	var payload simSwapData
	if err := json.Unmarshal(swapData, &payload); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrBadSwapData, err)
	}
	if payload.SellToken != r.sellToken || payload.BuyToken != r.buyToken {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: pair mismatch for router %s", ErrBadSwapData, r.id)
	}
	price, err := sdkmath.LegacyNewDecFromStr(payload.Price)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrBadSwapData, err)
	}
	return sellAmount.MulTruncate(price), nil
}
