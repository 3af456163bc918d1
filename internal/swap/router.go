/*

This file contains the swap router surface and the allow-list guarding it.
Swap calldata is opaque and router specific (1inch, Pendle, Magpie in
production); the executor only ever hands it to a whitelisted router.

*/

package swap

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

var (
	ErrUnverifiedRouter = errors.New("router is not on the allow-list")
	ErrUnknownRouter    = errors.New("router is not registered")
	ErrBadSwapData      = errors.New("swap data is malformed")
)

// Router executes opaque swap calldata, spending sellAmount and returning
// the amount bought.
type Router interface {
	ID() string
	Execute(swapData []byte, sellAmount sdkmath.LegacyDec) (sdkmath.LegacyDec, error)
}

// Whitelist is the admin-gated router allow-list. Routers must be both
// registered and flagged allowed before the executor will touch them.
type Whitelist struct {
	mu      sync.RWMutex
	admin   string
	routers map[string]Router
	allowed map[string]bool
}

func NewWhitelist(adminKey string) (*Whitelist, error) {
	if adminKey == "" {
		return nil, fmt.Errorf("whitelist admin key cannot be empty")
	}
	return &Whitelist{
		admin:   adminKey,
		routers: make(map[string]Router),
		allowed: make(map[string]bool),
	}, nil
}

// Register makes a router known. Registration does not allow it.
func (w *Whitelist) Register(caller string, router Router) error {
	if caller != w.admin {
		return types.ErrUnauthorized
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.routers[router.ID()] = router
	return nil
}

// WhitelistRouter flips a router's allowed flag.
func (w *Whitelist) WhitelistRouter(caller, routerID string, allowed bool) error {
	if caller != w.admin {
		return types.ErrUnauthorized
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.routers[routerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRouter, routerID)
	}
	w.allowed[routerID] = allowed
	return nil
}

// Verified returns the router for routerID if and only if it is allowed.
func (w *Whitelist) Verified(routerID string) (Router, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	router, ok := w.routers[routerID]
	if !ok || !w.allowed[routerID] {
		return nil, fmt.Errorf("%w: %s", ErrUnverifiedRouter, routerID)
	}
	return router, nil
}
