package datafeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// tickServer upgrades each connection, checks the subscribe request and
// plays back the given messages.
func tickServer(t *testing.T, messages []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		if req.Op != "subscribe" || req.Pair != "WSTETH/WETH" {
			t.Errorf("unexpected subscribe request: %+v", req)
			return
		}

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// waitForPrice polls the feed until it serves a price or the deadline hits.
func waitForPrice(t *testing.T, feed *Feed) sdkmath.LegacyDec {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		price, err := feed.LatestDexPrice()
		if err == nil {
			return price
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("feed never served a price")
	return sdkmath.LegacyDec{}
}

func TestFeedServesLatestTick(t *testing.T) {
	require := require.New(t)

	now := time.Now().UnixMilli()
	server := tickServer(t, []string{
		`{"pair":"WSTETH/WETH","price":"1.2497","timestamp":` + jsonInt(now) + `}`,
		`{"pair":"WSTETH/WETH","price":"1.2501","timestamp":` + jsonInt(now+10) + `}`,
	})
	defer server.Close()

	feed, err := NewFeed(context.Background(), DefaultConfig(wsURL(server), "WSTETH/WETH"))
	require.NoError(err)
	defer feed.Close()

	// Both ticks arrive in order; the feed ends up on the second.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		price, err := feed.LatestDexPrice()
		if err == nil && price.Equal(dec("1.2501")) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	price, err := feed.LatestDexPrice()
	require.NoError(err)
	require.Equal(dec("1.2501"), price)
}

func TestFeedDropsBadTicks(t *testing.T) {
	require := require.New(t)

	now := time.Now().UnixMilli()
	server := tickServer(t, []string{
		`this is not json`,
		`{"pair":"OTHER/PAIR","price":"99","timestamp":` + jsonInt(now) + `}`,
		`{"pair":"WSTETH/WETH","price":"-5","timestamp":` + jsonInt(now) + `}`,
		`{"pair":"WSTETH/WETH","price":"1.25","timestamp":` + jsonInt(now) + `}`,
	})
	defer server.Close()

	feed, err := NewFeed(context.Background(), DefaultConfig(wsURL(server), "WSTETH/WETH"))
	require.NoError(err)
	defer feed.Close()

	// Only the well-formed tick for the right pair lands.
	require.Equal(dec("1.25"), waitForPrice(t, feed))
}

func TestFeedBeforeFirstTick(t *testing.T) {
	require := require.New(t)

	server := tickServer(t, nil)
	defer server.Close()

	feed, err := NewFeed(context.Background(), DefaultConfig(wsURL(server), "WSTETH/WETH"))
	require.NoError(err)
	defer feed.Close()

	_, err = feed.LatestDexPrice()
	require.ErrorIs(err, ErrNoPriceObserved)
}

func TestFeedStaleTick(t *testing.T) {
	require := require.New(t)

	// The tick's embedded timestamp is already past the staleness window.
	old := time.Now().Add(-time.Minute).UnixMilli()
	server := tickServer(t, []string{
		`{"pair":"WSTETH/WETH","price":"1.25","timestamp":` + jsonInt(old) + `}`,
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "WSTETH/WETH")
	cfg.Staleness = 30 * time.Second
	feed, err := NewFeed(context.Background(), cfg)
	require.NoError(err)
	defer feed.Close()

	// The tick records, but reads refuse it as stale.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := feed.LatestDexPrice()
		if !errors.Is(err, ErrNoPriceObserved) {
			require.ErrorIs(err, ErrPriceStale)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("feed never recorded the stale tick")
}

func TestFeedClose(t *testing.T) {
	require := require.New(t)

	server := tickServer(t, nil)
	defer server.Close()

	feed, err := NewFeed(context.Background(), DefaultConfig(wsURL(server), "WSTETH/WETH"))
	require.NoError(err)

	feed.Close()
	_, err = feed.LatestDexPrice()
	require.ErrorIs(err, ErrFeedClosed)

	// Close is idempotent.
	feed.Close()
}

func TestFeedConfigValidation(t *testing.T) {
	require := require.New(t)

	_, err := NewFeed(context.Background(), DefaultConfig("", "WSTETH/WETH"))
	require.Error(err)

	_, err = NewFeed(context.Background(), DefaultConfig("ws://localhost:1", ""))
	require.Error(err)
}

func TestStaticFeed(t *testing.T) {
	require := require.New(t)

	feed := NewStaticFeed(sdkmath.LegacyDec{})
	_, err := feed.LatestDexPrice()
	require.ErrorIs(err, ErrNoPriceObserved)

	feed.SetPrice(dec("1.25"))
	price, err := feed.LatestDexPrice()
	require.NoError(err)
	require.Equal(dec("1.25"), price)

	preset := NewStaticFeed(dec("0.8"))
	price, err = preset.LatestDexPrice()
	require.NoError(err)
	require.Equal(dec("0.8"), price)
}

func jsonInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
