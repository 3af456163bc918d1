package swap

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/origami-labs/lovm/internal/types"
)

const whitelistAdmin = "swap-admin"

var (
	tokenWETH   = types.TokenAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenWSTETH = types.TokenAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestWhitelistLifecycle(t *testing.T) {
	require := require.New(t)

	w, err := NewWhitelist(whitelistAdmin)
	require.NoError(err)

	router := NewSimulatedRouter("sim-a", tokenWETH, tokenWSTETH, dec("0.86"))

	// Unregistered routers are unverified.
	_, err = w.Verified("sim-a")
	require.ErrorIs(err, ErrUnverifiedRouter)

	// Registered but not yet allowed is still unverified.
	require.NoError(w.Register(whitelistAdmin, router))
	_, err = w.Verified("sim-a")
	require.ErrorIs(err, ErrUnverifiedRouter)

	require.NoError(w.WhitelistRouter(whitelistAdmin, "sim-a", true))
	got, err := w.Verified("sim-a")
	require.NoError(err)
	require.Equal("sim-a", got.ID())

	// Revocation takes immediate effect.
	require.NoError(w.WhitelistRouter(whitelistAdmin, "sim-a", false))
	_, err = w.Verified("sim-a")
	require.ErrorIs(err, ErrUnverifiedRouter)
}

func TestWhitelistAuthorization(t *testing.T) {
	require := require.New(t)

	w, err := NewWhitelist(whitelistAdmin)
	require.NoError(err)
	router := NewSimulatedRouter("sim-a", tokenWETH, tokenWSTETH, dec("0.86"))

	require.ErrorIs(w.Register("intruder", router), types.ErrUnauthorized)
	require.NoError(w.Register(whitelistAdmin, router))
	require.ErrorIs(w.WhitelistRouter("intruder", "sim-a", true), types.ErrUnauthorized)

	// Allowing an unknown router is an error, not a silent no-op.
	require.ErrorIs(w.WhitelistRouter(whitelistAdmin, "missing", true), ErrUnknownRouter)

	_, err = NewWhitelist("")
	require.Error(err)
}

func TestSimulatedRouterQuoteAndExecute(t *testing.T) {
	require := require.New(t)

	router := NewSimulatedRouter("sim-a", tokenWETH, tokenWSTETH, dec("0.8618"))

	expected, data, err := router.Quote(dec("100"))
	require.NoError(err)
	require.Equal(dec("86.18"), expected)

	// Execute replays the quoted fill exactly.
	bought, err := router.Execute(data, dec("100"))
	require.NoError(err)
	require.Equal(expected, bought)
}

func TestSimulatedRouterQuotePinsPrice(t *testing.T) {
	require := require.New(t)

	router := NewSimulatedRouter("sim-a", tokenWETH, tokenWSTETH, dec("0.8618"))
	_, data, err := router.Quote(dec("100"))
	require.NoError(err)

	// The price moves after the quote was issued; the calldata still fills
	// at the quoted price, like pinned aggregator routes.
	router.SetPrice(dec("0.80"))
	bought, err := router.Execute(data, dec("100"))
	require.NoError(err)
	require.Equal(dec("86.18"), bought)

	// A fresh quote picks up the new price.
	expected, _, err := router.Quote(dec("100"))
	require.NoError(err)
	require.Equal(dec("80"), expected)
}

func TestSimulatedRouterRejectsBadData(t *testing.T) {
	require := require.New(t)

	router := NewSimulatedRouter("sim-a", tokenWETH, tokenWSTETH, dec("0.8618"))

	_, err := router.Execute([]byte("not json"), dec("100"))
	require.ErrorIs(err, ErrBadSwapData)

	// Calldata from a router quoting the opposite pair must not fill.
	reverse := NewSimulatedRouter("sim-b", tokenWSTETH, tokenWETH, dec("1.16"))
	_, data, err := reverse.Quote(dec("100"))
	require.NoError(err)
	_, err = router.Execute(data, dec("100"))
	require.ErrorIs(err, ErrBadSwapData)
}
