/*

This file contains the token price registry: a mapping from token address to
its composable price function, plus the evaluator that resolves a function
against live oracle and contract state into an 18-decimal USD price.

Registries are versioned values. A vault points at exactly one registry at a
time and migrates by swapping the pointer; old registry instances remain
valid and queryable.

*/

package prices

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/types"
)

var (
	ErrNoPriceFunction      = errors.New("no price function registered for token")
	ErrCyclicAlias          = errors.New("cyclic alias detected in price function")
	ErrUnknownOracle        = errors.New("price function references an unknown oracle")
	ErrUnknownVault         = errors.New("price function references an unknown ERC-4626 vault")
	ErrUnknownStakedToken   = errors.New("price function references an unknown staked token")
	ErrInvalidPriceFunction = errors.New("price function is invalid")
)

// Registry maps token addresses to price functions and evaluates them on
// demand. No result caching: every query re-reads oracle state.
type Registry struct {
	mu      sync.RWMutex
	version int
	admin   string
	fns     map[types.TokenAddress]PriceFunction
	sources map[string]oracle.Source
	vaults  map[types.TokenAddress]Erc4626Reader
	staked  map[types.TokenAddress]StakedTokenReader
	now     func() time.Time
	logger  zerolog.Logger
}

// Config holds the dependencies for creating a Registry.
type Config struct {
	Version int
	// AdminKey is the capability required by Set/Clear and the register
	// calls. There is no ambient admin state.
	AdminKey string
	// Clock is used for oracle staleness checks. Nil defaults to time.Now.
	Clock func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Version <= 0 {
		return nil, fmt.Errorf("registry version must be positive")
	}
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("registry admin key cannot be empty")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		version: cfg.Version,
		admin:   cfg.AdminKey,
		fns:     make(map[types.TokenAddress]PriceFunction),
		sources: make(map[string]oracle.Source),
		vaults:  make(map[types.TokenAddress]Erc4626Reader),
		staked:  make(map[types.TokenAddress]StakedTokenReader),
		now:     clock,
		logger:  logger.GetForComponent("price_registry"),
	}, nil
}

func (r *Registry) Version() int {
	return r.version
}

func (r *Registry) authorize(caller string) error {
	if caller != r.admin {
		return types.ErrUnauthorized
	}
	return nil
}

// Set registers or overwrites the price function for token. Cycles are not
// validated here; a cyclic alias chain only surfaces at evaluation time.
func (r *Registry) Set(caller string, token types.TokenAddress, fn PriceFunction) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: nil function", ErrInvalidPriceFunction)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[token] = fn
	r.logger.Info().
		Int("registryVersion", r.version).
		Str("token", string(token)).
		Msg("Token price function set")
	return nil
}

// Clear removes the price function for token.
func (r *Registry) Clear(caller string, token types.TokenAddress) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fns, token)
	r.logger.Info().
		Int("registryVersion", r.version).
		Str("token", string(token)).
		Msg("Token price function cleared")
	return nil
}

// RegisterOracleSource makes a named oracle feed available to OracleLookup
// functions.
func (r *Registry) RegisterOracleSource(caller, oracleID string, source oracle.Source) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[oracleID] = source
	return nil
}

// RegisterErc4626 makes an ERC-4626 vault readable by Erc4626Share functions.
func (r *Registry) RegisterErc4626(caller string, vault types.TokenAddress, reader Erc4626Reader) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults[vault] = reader
	return nil
}

// RegisterStakedToken makes a staked token's exchange-rate accessor readable
// by StakedTokenRatio functions.
func (r *Registry) RegisterStakedToken(caller string, token types.TokenAddress, reader StakedTokenReader) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staked[token] = reader
	return nil
}

// TokenPrice looks up and evaluates the price function for token.
func (r *Registry) TokenPrice(token types.TokenAddress) (sdkmath.LegacyDec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokenPriceLocked(token, map[types.TokenAddress]bool{})
}

// TokenPrices is the batch variant. Each token is evaluated independently;
// shared sub-expressions are re-evaluated per token, not memoized across the
// batch.
func (r *Registry) TokenPrices(tokens []types.TokenAddress) ([]sdkmath.LegacyDec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sdkmath.LegacyDec, len(tokens))
	for i, token := range tokens {
		price, err := r.tokenPriceLocked(token, map[types.TokenAddress]bool{})
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token, err)
		}
		out[i] = price
	}
	return out, nil
}

func (r *Registry) tokenPriceLocked(token types.TokenAddress, visited map[types.TokenAddress]bool) (sdkmath.LegacyDec, error) {
	if visited[token] {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: token %s revisited", ErrCyclicAlias, token)
	}
	fn, ok := r.fns[token]
	if !ok {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrNoPriceFunction, token)
	}
	// visited is the current resolution path, not a global seen-set: a token
	// may legitimately appear in two sibling branches of a Mul.
	visited[token] = true
	defer delete(visited, token)
	return r.evalLocked(fn, visited)
}

// evalLocked resolves one price function. The visited set tracks tokens seen
// along the current alias/composition chain so cycles fail instead of
// recursing forever.
func (r *Registry) evalLocked(fn PriceFunction, visited map[types.TokenAddress]bool) (sdkmath.LegacyDec, error) {
	switch f := fn.(type) {
	case Scalar:
		if f.Value.IsNil() || f.Value.IsNegative() {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: scalar value", ErrInvalidPriceFunction)
		}
		return f.Value, nil

	case OracleLookup:
		source, ok := r.sources[f.OracleID]
		if !ok {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrUnknownOracle, f.OracleID)
		}
		round, err := source.LatestRound(f.PriceType)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		if round.Price.IsNil() || !round.Price.IsPositive() {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", oracle.ErrInvalidRound, f.OracleID)
		}
		if age := r.now().Sub(round.UpdatedAt); age > f.Staleness {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s: age %s exceeds threshold %s",
				oracle.ErrStalePrice, f.OracleID, age, f.Staleness)
		}
		if f.Invert {
			if f.Rounding == types.RoundUp {
				return sdkmath.LegacyOneDec().QuoRoundUp(round.Price), nil
			}
			return sdkmath.LegacyOneDec().QuoTruncate(round.Price), nil
		}
		return round.Price, nil

	case Mul:
		a, err := r.evalLocked(f.A, visited)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		b, err := r.evalLocked(f.B, visited)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		return a.MulTruncate(b), nil

	case Alias:
		return r.tokenPriceLocked(f.Token, visited)

	case Erc4626Share:
		reader, ok := r.vaults[f.Vault]
		if !ok {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrUnknownVault, f.Vault)
		}
		assetsPerShare, err := reader.ConvertToAssets(sdkmath.LegacyOneDec())
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		assetPrice, err := r.tokenPriceLocked(reader.Asset(), visited)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		return assetsPerShare.MulTruncate(assetPrice), nil

	case StakedTokenRatio:
		reader, ok := r.staked[f.Token]
		if !ok {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrUnknownStakedToken, f.Token)
		}
		return reader.ExchangeRate()

	default:
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: unhandled variant %T", ErrInvalidPriceFunction, fn)
	}
}
