package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/lobby-trading-api/internal/auth"
	"github.com/ksred/lobby-trading-api/internal/database"
	"github.com/ksred/lobby-trading-api/internal/execution"
	"github.com/ksred/lobby-trading-api/internal/leaderboard"
	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/ksred/lobby-trading-api/internal/lobby"
	"github.com/ksred/lobby-trading-api/internal/manager"
	"github.com/ksred/lobby-trading-api/internal/positions"
	"github.com/ksred/lobby-trading-api/internal/prices"
	"github.com/ksred/lobby-trading-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the lobby trading API server with graceful
// shutdown support
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "lobby-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)

	ledgerService := ledger.NewService(db)

	lobbyService := lobby.NewService(db, ledgerService)
	lobbyHandlers := lobby.NewGinHandlers(lobbyService)

	// Create and start lobby lifecycle processor
	lobbyProcessor := lobby.NewProcessor(lobby.NewDatabase(db))
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go lobbyProcessor.Start(processorCtx)

	oracle := prices.NewOracle(os.Getenv("PRICE_FEED_URL"))
	positionStore := positions.NewDatabase(db)

	liveProvider := execution.NewLiveProvider(os.Getenv("VENUE_BASE_URL"), os.Getenv("VENUE_WS_URL"))
	simulatedProvider := execution.NewSimulatedProvider(oracle, positionStore)
	providers := execution.NewSelector(liveProvider, simulatedProvider)

	managerService := manager.NewService(db, ledgerService, lobbyService, providers)
	managerHandlers := manager.NewGinHandlers(managerService)
	defer managerService.StopAllValuationSyncs()

	leaderboardService := leaderboard.NewService(ledgerService, lobbyService)
	leaderboardHandlers := leaderboard.NewGinHandlers(leaderboardService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, lobbyHandlers, managerHandlers, leaderboardHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for session creation
// - Lobby routes: Create/join/list lobbies and read standings
// - Position routes: The trading surface, protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	lobbyHandlers *lobby.GinHandlers,
	managerHandlers *manager.GinHandlers,
	leaderboardHandlers *leaderboard.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/session", authHandlers.CreateSessionHandler())
		}

		// Lobby routes
		lobbies := v1.Group("/lobbies")
		lobbies.Use(middleware.JWTAuth(jwtSecret))
		{
			lobbies.POST("", lobbyHandlers.CreateLobbyHandler())
			lobbies.GET("", lobbyHandlers.ListLobbiesHandler())
			lobbies.GET("/:lobby_id", lobbyHandlers.GetLobbyHandler())
			lobbies.POST("/:lobby_id/join", lobbyHandlers.JoinLobbyHandler())
			lobbies.GET("/:lobby_id/leaderboard", leaderboardHandlers.GetLeaderboardHandler())
			lobbies.GET("/:lobby_id/balance-history", leaderboardHandlers.GetBalanceHistoryHandler())
		}

		// Position routes
		positionRoutes := v1.Group("/positions")
		positionRoutes.Use(middleware.JWTAuth(jwtSecret))
		{
			positionRoutes.GET("", managerHandlers.GetPositionsHandler())
			positionRoutes.POST("", managerHandlers.OpenPositionHandler())
			positionRoutes.POST("/:position_id/close", managerHandlers.ClosePositionHandler())
			positionRoutes.POST("/close-all", managerHandlers.CloseAllPositionsHandler())
			positionRoutes.POST("/sync", managerHandlers.StartSyncHandler())
			positionRoutes.DELETE("/sync", managerHandlers.StopSyncHandler())
			positionRoutes.GET("/sync", managerHandlers.SyncStatusHandler())
		}
	}
}
