package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numPlayers    = 5
	tradesPerGame = 4
	serverAddress = "http://localhost:8080"
	defaultBuyIn  = 1000.0
)

var pairs = [][2]string{
	{"BTC", "ETH"},
	{"SOL", "AVAX"},
	{"LINK", "UNI"},
	{"DOGE", "SHIB"},
	{"ARB", "OP"},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// player is one simulated competitor driving the API with its own session
type player struct {
	address   string
	authToken string
}

// simulationClient handles HTTP communication with the lobby trading API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 60 * time.Second},
		stats: map[string]*routeStats{
			"session":     {name: "Create Session"},
			"lobby":       {name: "Create/Join Lobby"},
			"open":        {name: "Open Position"},
			"close":       {name: "Close Position"},
			"close-all":   {name: "Close All Positions"},
			"leaderboard": {name: "Leaderboard"},
		},
	}
}

func (sc *simulationClient) do(method, path, authToken string, payload interface{}, statKey string) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[statKey].addFailure()
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats[statKey].addFailure()
		return nil, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(raw))
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(raw))
	}
	return envelope.Data, nil
}

// createSession obtains a wallet session token
func (sc *simulationClient) createSession(address string) (string, error) {
	data, err := sc.do(http.MethodPost, "/api/v1/auth/session", "",
		map[string]string{"wallet_address": address}, "session")
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// createLobby creates a demo lobby owned by the given player
func (sc *simulationClient) createLobby(p *player) (string, error) {
	now := time.Now()
	data, err := sc.do(http.MethodPost, "/api/v1/lobbies", p.authToken, map[string]interface{}{
		"name":       fmt.Sprintf("simulation-%d", now.Unix()),
		"start_time": now.Add(time.Minute).UnixMilli(),
		"end_time":   now.Add(2 * time.Hour).UnixMilli(),
		"buy_in":     defaultBuyIn,
		"split":      1.0,
		"is_demo":    true,
	}, "lobby")
	if err != nil {
		return "", err
	}

	var result struct {
		LobbyID string `json:"lobby_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	return result.LobbyID, nil
}

func (sc *simulationClient) joinLobby(p *player, lobbyID string) error {
	_, err := sc.do(http.MethodPost, "/api/v1/lobbies/"+lobbyID+"/join", p.authToken, nil, "lobby")
	return err
}

// openPosition opens a random pair position and returns its ID
func (sc *simulationClient) openPosition(p *player, lobbyID string) (string, error) {
	pair := pairs[rand.Intn(len(pairs))]
	leverage := float64(1 + rand.Intn(5))
	usdValue := 50.0 + rand.Float64()*200.0

	data, err := sc.do(http.MethodPost, "/api/v1/positions", p.authToken, map[string]interface{}{
		"lobby_id":    lobbyID,
		"long_asset":  pair[0],
		"short_asset": pair[1],
		"leverage":    leverage,
		"usd_value":   usdValue,
	}, "open")
	if err != nil {
		return "", err
	}

	var result struct {
		PositionID string `json:"position_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	return result.PositionID, nil
}

func (sc *simulationClient) closePosition(p *player, positionID string) error {
	_, err := sc.do(http.MethodPost, "/api/v1/positions/"+positionID+"/close", p.authToken,
		map[string]string{}, "close")
	return err
}

func (sc *simulationClient) closeAll(p *player, lobbyID string) error {
	_, err := sc.do(http.MethodPost, "/api/v1/positions/close-all", p.authToken,
		map[string]string{"lobby_id": lobbyID}, "close-all")
	return err
}

// leaderboard fetches the lobby's final standings
func (sc *simulationClient) leaderboard(p *player, lobbyID string) ([]map[string]interface{}, error) {
	data, err := sc.do(http.MethodGet, "/api/v1/lobbies/"+lobbyID+"/leaderboard", p.authToken, nil, "leaderboard")
	if err != nil {
		return nil, err
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// runPlayer plays one competitor's session: open a handful of positions,
// hold briefly, then close some individually and flatten the rest
func (sc *simulationClient) runPlayer(p *player, lobbyID string) {
	logger := log.With().Str("address", p.address).Logger()

	var opened []string
	for i := 0; i < tradesPerGame; i++ {
		positionID, err := sc.openPosition(p, lobbyID)
		if err != nil {
			logger.Warn().Err(err).Msg("open position failed")
			continue
		}
		opened = append(opened, positionID)
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}

	logger.Info().Int("opened", len(opened)).Msg("positions opened")
	time.Sleep(2 * time.Second)

	// Close roughly half individually; close-all picks up the remainder.
	for i, positionID := range opened {
		if i%2 == 0 {
			if err := sc.closePosition(p, positionID); err != nil {
				logger.Warn().Err(err).Str("position_id", positionID).Msg("close failed")
			}
		}
	}

	if err := sc.closeAll(p, lobbyID); err != nil {
		logger.Warn().Err(err).Msg("close-all failed")
	}
}

func main() {
	sc := newSimulationClient()

	// Create players with wallet sessions
	players := make([]*player, numPlayers)
	for i := range players {
		address := fmt.Sprintf("0xsim%040d", i)
		token, err := sc.createSession(address)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create session")
		}
		players[i] = &player{address: address, authToken: token}
	}

	// First player creates the lobby, everyone else joins
	lobbyID, err := sc.createLobby(players[0])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create lobby")
	}
	log.Info().Str("lobby_id", lobbyID).Msg("simulation lobby created")

	for _, p := range players[1:] {
		if err := sc.joinLobby(p, lobbyID); err != nil {
			log.Fatal().Err(err).Str("address", p.address).Msg("failed to join lobby")
		}
	}

	// Run all players concurrently
	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p *player) {
			defer wg.Done()
			sc.runPlayer(p, lobbyID)
		}(p)
	}
	wg.Wait()

	// Print final standings
	entries, err := sc.leaderboard(players[0], lobbyID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch leaderboard")
	}

	fmt.Println("\n=== Final Standings ===")
	for _, entry := range entries {
		fmt.Printf("#%v  %v  total=%.2f  pnl=%.2f\n",
			entry["rank"], entry["address"], entry["total_value"], entry["pnl"])
	}

	// Print route statistics
	fmt.Println("\n=== Route Statistics ===")
	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-22s calls=%-4d failures=%-3d min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
			stats.name, stats.totalCalls, stats.failures, min, max, mean, median, p95, p99)
	}
}
