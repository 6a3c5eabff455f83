package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVenue serves the venue's position endpoints from an in-memory book.
// Orders fill immediately unless holdFills is set, which models the window
// between acknowledgment and the position appearing in the list.
type fakeVenue struct {
	mu        sync.Mutex
	book      []types.PositionSnapshot
	holdFills bool
	rejectMsg string
	nextID    int
}

func (v *fakeVenue) addPosition(snapshot types.PositionSnapshot) {
	v.mu.Lock()
	v.book = append(v.book, snapshot)
	v.mu.Unlock()
}

func (v *fakeVenue) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()

		if r.Method == http.MethodGet {
			snapshots := v.book
			if snapshots == nil {
				snapshots = []types.PositionSnapshot{}
			}
			json.NewEncoder(w).Encode(snapshots)
			return
		}

		if v.rejectMsg != "" {
			json.NewEncoder(w).Encode(map[string]string{"message": v.rejectMsg})
			return
		}

		var req struct {
			Leverage    float64 `json:"leverage"`
			UsdValue    float64 `json:"usdValue"`
			LongAssets  []struct{ Asset string }
			ShortAssets []struct{ Asset string }
		}
		json.NewDecoder(r.Body).Decode(&req)

		v.nextID++
		orderID := "order-" + strconv.Itoa(v.nextID)
		if !v.holdFills {
			v.book = append(v.book, types.PositionSnapshot{
				PositionID:    "venue-pos-" + strconv.Itoa(v.nextID),
				PositionValue: req.UsdValue / req.Leverage,
				MarginUsed:    req.UsdValue / req.Leverage,
				LongAssets:    []types.AssetPosition{{Coin: req.LongAssets[0].Asset, Leverage: req.Leverage}},
				ShortAssets:   []types.AssetPosition{{Coin: req.ShortAssets[0].Asset, Leverage: req.Leverage}},
			})
		}
		json.NewEncoder(w).Encode(map[string]string{"orderId": orderID})
	})

	mux.HandleFunc("/positions/", func(w http.ResponseWriter, r *http.Request) {
		positionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/positions/"), "/close")

		v.mu.Lock()
		defer v.mu.Unlock()

		if v.holdFills {
			json.NewEncoder(w).Encode(map[string]string{})
			return
		}
		for i := range v.book {
			if v.book[i].PositionID == positionID {
				v.book = append(v.book[:i], v.book[i+1:]...)
				break
			}
		}
		json.NewEncoder(w).Encode(map[string]string{})
	})

	return mux
}

func newLiveFixture(t *testing.T) (*LiveProvider, *fakeVenue) {
	t.Helper()
	venue := &fakeVenue{}
	server := httptest.NewServer(venue.handler())
	t.Cleanup(server.Close)

	return &LiveProvider{
		httpClient:   server.Client(),
		baseURL:      server.URL,
		pollInterval: time.Millisecond,
	}, venue
}

func TestLiveCreatePositionConfirmsOnObservedFill(t *testing.T) {
	provider, _ := newLiveFixture(t)

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationConfirmed, result.Confirmation)
	assert.NotEmpty(t, result.OrderID)
	assert.NotEmpty(t, result.PositionID)
	assert.Equal(t, 100.0, result.MarginUsed)
}

func TestLiveCreatePositionIgnoresPreexistingPositions(t *testing.T) {
	provider, venue := newLiveFixture(t)

	// An older position with the same pair and leverage must not be
	// mistaken for the new fill.
	venue.addPosition(types.PositionSnapshot{
		PositionID:  "venue-pos-old",
		LongAssets:  []types.AssetPosition{{Coin: "BTC", Leverage: 5}},
		ShortAssets: []types.AssetPosition{{Coin: "ETH", Leverage: 5}},
	})

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationConfirmed, result.Confirmation)
	assert.NotEqual(t, "venue-pos-old", result.PositionID)
}

func TestLiveCreatePositionRejectedWithoutOrderID(t *testing.T) {
	provider, venue := newLiveFixture(t)
	venue.rejectMsg = "insufficient margin"

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationRejected, result.Confirmation)
	assert.Equal(t, "insufficient margin", result.Error)
}

func TestLiveCreatePositionUnconfirmedWhenFillNeverAppears(t *testing.T) {
	provider, venue := newLiveFixture(t)
	venue.holdFills = true

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationUnconfirmed, result.Confirmation)
	assert.NotEmpty(t, result.OrderID)
	assert.NotEmpty(t, result.Error)
}

func TestLiveClosePositionRealizesSnapshotValue(t *testing.T) {
	provider, venue := newLiveFixture(t)
	venue.addPosition(types.PositionSnapshot{
		PositionID:    "venue-pos-1",
		PositionValue: 100,
		UnrealizedPnl: 25,
	})

	result, err := provider.ClosePosition(context.Background(), &types.ClosePositionRequest{
		PositionID: "venue-pos-1",
		Address:    "0xabc",
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationConfirmed, result.Confirmation)
	assert.Equal(t, 125.0, result.RealizedValue)
}

func TestLiveClosePositionRejectedWhenAbsent(t *testing.T) {
	provider, _ := newLiveFixture(t)

	result, err := provider.ClosePosition(context.Background(), &types.ClosePositionRequest{
		PositionID: "venue-pos-missing",
		Address:    "0xabc",
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationRejected, result.Confirmation)
}

func TestLiveClosePositionUnconfirmedWhenStillListed(t *testing.T) {
	provider, venue := newLiveFixture(t)
	venue.addPosition(types.PositionSnapshot{PositionID: "venue-pos-1", PositionValue: 100})
	venue.holdFills = true

	result, err := provider.ClosePosition(context.Background(), &types.ClosePositionRequest{
		PositionID: "venue-pos-1",
		Address:    "0xabc",
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationUnconfirmed, result.Confirmation)
}

func TestLiveCloseAllPositions(t *testing.T) {
	provider, venue := newLiveFixture(t)
	venue.addPosition(types.PositionSnapshot{PositionID: "venue-pos-1", PositionValue: 100, UnrealizedPnl: 10})
	venue.addPosition(types.PositionSnapshot{PositionID: "venue-pos-2", PositionValue: 50, UnrealizedPnl: -5})

	result, err := provider.CloseAllPositions(context.Background(), &types.CloseAllPositionsRequest{
		Address: "0xabc",
	}, "token")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ClosedCount)
	assert.InDelta(t, 155.0, result.TotalRealizedValue, 1e-9)
}

// fakeStream feeds canned frames to the subscription loop.
type fakeStream struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		frames: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) ReadMessage() ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.closed:
		return nil, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestLiveSubscribeForwardsPositionFrames(t *testing.T) {
	stream := newFakeStream()
	provider := &LiveProvider{
		dial: func(_, _ string) (StreamConn, error) { return stream, nil },
	}

	received := make(chan []types.PositionSnapshot, 8)
	cancel, err := provider.SubscribeToPositions("0xabc", "lobby-1", func(snapshots []types.PositionSnapshot) {
		received <- snapshots
	})
	require.NoError(t, err)
	defer cancel()

	// Batch frame.
	stream.frames <- []byte(`{"channel":"positions","data":[{"positionId":"p1"},{"positionId":"p2"}]}`)
	// Single-position frame arrives unwrapped.
	stream.frames <- []byte(`{"channel":"positions","data":{"positionId":"p3"}}`)
	// Unrelated channel is dropped.
	stream.frames <- []byte(`{"channel":"orders","data":{"orderId":"o1"}}`)

	select {
	case snapshots := <-received:
		require.Len(t, snapshots, 2)
		assert.Equal(t, "p1", snapshots[0].PositionID)
	case <-time.After(time.Second):
		t.Fatal("batch frame not delivered")
	}

	select {
	case snapshots := <-received:
		require.Len(t, snapshots, 1)
		assert.Equal(t, "p3", snapshots[0].PositionID)
	case <-time.After(time.Second):
		t.Fatal("single frame not delivered")
	}

	cancel()
	cancel()

	select {
	case snapshots := <-received:
		t.Fatalf("unexpected frame after cancel: %v", snapshots)
	case <-time.After(50 * time.Millisecond):
	}
}
