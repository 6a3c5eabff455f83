package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultVenueBaseURL is the live venue's HTTP API.
	DefaultVenueBaseURL = "https://hl-v2.pearprotocol.io"
	// DefaultVenueWSURL is the live venue's position stream.
	DefaultVenueWSURL = "wss://hl-v2.pearprotocol.io/ws"

	// Confirmation polling bounds. The venue acknowledges orders before
	// filling them, so create/close wait for the position list to change.
	confirmAttempts     = 30
	bulkConfirmAttempts = 60
	confirmPollInterval = time.Second
)

// Dialer opens the venue's position stream. Split out so tests can supply a
// fake stream.
type Dialer func(wsURL, address string) (StreamConn, error)

// StreamConn is the minimal surface the subscription loop needs from a
// websocket connection.
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// LiveProvider trades against the external venue over HTTP, bearer-token
// authenticated. Submission is asynchronous relative to confirmation: every
// create/close is followed by a bounded poll of the venue's position list.
type LiveProvider struct {
	httpClient   *http.Client
	baseURL      string
	wsURL        string
	dial         Dialer
	pollInterval time.Duration
}

func NewLiveProvider(baseURL, wsURL string) *LiveProvider {
	if baseURL == "" {
		baseURL = DefaultVenueBaseURL
	}
	if wsURL == "" {
		wsURL = DefaultVenueWSURL
	}
	return &LiveProvider{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		baseURL:      baseURL,
		wsURL:        wsURL,
		dial:         dialVenueStream,
		pollInterval: confirmPollInterval,
	}
}

type venueError struct {
	Message string `json:"message"`
}

func (p *LiveProvider) GetPositions(ctx context.Context, _, authToken string) ([]types.PositionSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/positions", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Accept", "*/*")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get positions: %s", venueMessage(resp))
	}

	var snapshots []types.PositionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return snapshots, nil
}

// CreatePosition submits the order and then polls the venue's position list
// for a position that was not there before and matches the request's asset
// pair and leverage. The venue does not return the position identifier in
// the acknowledgment, so matching is heuristic: concurrent same-pair
// same-leverage opens by one address are ambiguous and are a known
// limitation.
func (p *LiveProvider) CreatePosition(ctx context.Context, req *types.CreatePositionRequest, authToken string) (*types.CreatePositionResult, error) {
	existing, err := p.GetPositions(ctx, req.Address, authToken)
	if err != nil {
		return nil, err
	}
	existingIDs := make(map[string]struct{}, len(existing))
	for _, snapshot := range existing {
		existingIDs[snapshot.PositionID] = struct{}{}
	}

	payload := map[string]interface{}{
		"slippage":      req.Slippage,
		"executionType": req.ExecutionType,
		"leverage":      req.Leverage,
		"usdValue":      req.UsdValue,
		"longAssets":    []map[string]interface{}{{"asset": req.LongAsset, "weight": 0.5}},
		"shortAssets":   []map[string]interface{}{{"asset": req.ShortAsset, "weight": 0.5}},
	}

	var ack struct {
		OrderID string `json:"orderId"`
		Message string `json:"message"`
	}
	if err := p.post(ctx, "/positions", authToken, payload, &ack); err != nil {
		return nil, err
	}
	if ack.OrderID == "" {
		message := ack.Message
		if message == "" {
			message = "failed to create position"
		}
		return &types.CreatePositionResult{
			Confirmation: types.ConfirmationRejected,
			Error:        message,
		}, nil
	}

	logger := log.With().
		Str("order_id", ack.OrderID).
		Str("address", req.Address).
		Str("long_asset", req.LongAsset).
		Str("short_asset", req.ShortAsset).
		Logger()
	logger.Info().Msg("position order acknowledged, polling for fill")

	for attempt := 0; attempt < confirmAttempts; attempt++ {
		if err := sleepCtx(ctx, p.pollInterval); err != nil {
			break
		}

		current, err := p.GetPositions(ctx, req.Address, authToken)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("confirmation poll failed")
			continue
		}

		for i := range current {
			snapshot := &current[i]
			if _, seen := existingIDs[snapshot.PositionID]; seen {
				continue
			}
			if snapshot.HasLongCoin(req.LongAsset) &&
				snapshot.HasShortCoin(req.ShortAsset) &&
				snapshot.HasLeverage(req.Leverage) {
				logger.Info().
					Str("position_id", snapshot.PositionID).
					Float64("margin_used", snapshot.MarginUsed).
					Msg("position fill confirmed")
				return &types.CreatePositionResult{
					Confirmation: types.ConfirmationConfirmed,
					OrderID:      ack.OrderID,
					PositionID:   snapshot.PositionID,
					MarginUsed:   snapshot.MarginUsed,
				}, nil
			}
		}
	}

	// The order may still fill on the venue; retrying the submission here
	// could double-submit, so report the uncertainty instead.
	logger.Warn().Msg("position not observed within confirmation window")
	return &types.CreatePositionResult{
		Confirmation: types.ConfirmationUnconfirmed,
		OrderID:      ack.OrderID,
		Error:        "position created but could not retrieve position within timeout",
	}, nil
}

// ClosePosition values the position from its latest snapshot, submits the
// close and polls until the position disappears from the venue's list.
func (p *LiveProvider) ClosePosition(ctx context.Context, req *types.ClosePositionRequest, authToken string) (*types.ClosePositionResult, error) {
	snapshots, err := p.GetPositions(ctx, req.Address, authToken)
	if err != nil {
		return nil, err
	}

	var current *types.PositionSnapshot
	for i := range snapshots {
		if snapshots[i].PositionID == req.PositionID {
			current = &snapshots[i]
			break
		}
	}
	if current == nil {
		return &types.ClosePositionResult{
			Confirmation: types.ConfirmationRejected,
			Error:        "position not found or already closed",
		}, nil
	}

	realizedValue := current.PositionValue + current.UnrealizedPnl

	executionType := req.ExecutionType
	if executionType == "" {
		executionType = "MARKET"
	}
	var closeAck venueError
	if err := p.post(ctx, "/positions/"+req.PositionID+"/close", authToken,
		map[string]interface{}{"executionType": executionType}, &closeAck); err != nil {
		return &types.ClosePositionResult{
			Confirmation: types.ConfirmationRejected,
			Error:        err.Error(),
		}, nil
	}

	for attempt := 0; attempt < confirmAttempts; attempt++ {
		if err := sleepCtx(ctx, p.pollInterval); err != nil {
			break
		}

		remaining, err := p.GetPositions(ctx, req.Address, authToken)
		if err != nil {
			continue
		}

		stillExists := false
		for i := range remaining {
			if remaining[i].PositionID == req.PositionID {
				stillExists = true
				break
			}
		}
		if !stillExists {
			log.Info().
				Str("position_id", req.PositionID).
				Float64("realized_value", realizedValue).
				Msg("position close confirmed")
			return &types.ClosePositionResult{
				Confirmation:  types.ConfirmationConfirmed,
				RealizedValue: realizedValue,
			}, nil
		}
	}

	return &types.ClosePositionResult{
		Confirmation: types.ConfirmationUnconfirmed,
		Error:        "close initiated but position still exists after timeout",
	}, nil
}

func (p *LiveProvider) CloseAllPositions(ctx context.Context, req *types.CloseAllPositionsRequest, authToken string) (*types.CloseAllPositionsResult, error) {
	snapshots, err := p.GetPositions(ctx, req.Address, authToken)
	if err != nil {
		return nil, err
	}

	result := &types.CloseAllPositionsResult{Success: true}
	if len(snapshots) == 0 {
		return result, nil
	}

	executionType := req.ExecutionType
	if executionType == "" {
		executionType = "MARKET"
	}

	for i := range snapshots {
		snapshot := &snapshots[i]
		realizedValue := snapshot.PositionValue + snapshot.UnrealizedPnl

		var closeAck venueError
		err := p.post(ctx, "/positions/"+snapshot.PositionID+"/close", authToken,
			map[string]interface{}{"executionType": executionType}, &closeAck)
		if err != nil {
			result.FailedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: snapshot.PositionID,
				Error:      err.Error(),
			})
			continue
		}

		result.ClosedCount++
		result.TotalRealizedValue += realizedValue
		result.Results = append(result.Results, types.ClosedPositionResult{
			PositionID:    snapshot.PositionID,
			Success:       true,
			RealizedValue: realizedValue,
		})
	}

	// Wait for the venue to report a flat book before returning. A bulk
	// close gets a longer window than a single close.
	for attempt := 0; attempt < bulkConfirmAttempts; attempt++ {
		if err := sleepCtx(ctx, p.pollInterval); err != nil {
			break
		}
		remaining, err := p.GetPositions(ctx, req.Address, authToken)
		if err != nil {
			continue
		}
		if len(remaining) == 0 {
			break
		}
	}

	if result.FailedCount > 0 {
		result.Success = false
		result.Error = fmt.Sprintf("%d positions failed to close", result.FailedCount)
	}
	return result, nil
}

// SubscribeToPositions connects to the venue's position stream and forwards
// each batch of snapshots to the callback until cancelled.
func (p *LiveProvider) SubscribeToPositions(address, _ string, callback SnapshotCallback) (func(), error) {
	conn, err := p.dial(p.wsURL, address)
	if err != nil {
		return nil, fmt.Errorf("failed to open venue stream: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				log.Debug().Err(err).Str("address", address).Msg("venue stream close failed")
			}
		})
	}

	go func() {
		defer cancel()
		for {
			message, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("address", address).Msg("venue stream ended")
				return
			}

			var frame struct {
				Channel string          `json:"channel"`
				Data    json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(message, &frame); err != nil || frame.Channel != "positions" || len(frame.Data) == 0 {
				continue
			}

			var snapshots []types.PositionSnapshot
			if err := json.Unmarshal(frame.Data, &snapshots); err != nil {
				// Single-position frames arrive unwrapped.
				var single types.PositionSnapshot
				if err := json.Unmarshal(frame.Data, &single); err != nil {
					log.Debug().Err(err).Msg("unparseable position frame")
					continue
				}
				snapshots = []types.PositionSnapshot{single}
			}

			callback(snapshots)
		}
	}()

	return cancel, nil
}

func (p *LiveProvider) post(ctx context.Context, path, authToken string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var venueErr venueError
		if json.Unmarshal(raw, &venueErr) == nil && venueErr.Message != "" {
			return fmt.Errorf("venue rejected request: %s", venueErr.Message)
		}
		return fmt.Errorf("venue returned status %d", resp.StatusCode)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode venue response: %w", err)
		}
	}
	return nil
}

func venueMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(resp.Body)
	var venueErr venueError
	if json.Unmarshal(raw, &venueErr) == nil && venueErr.Message != "" {
		return venueErr.Message
	}
	return resp.Status
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
