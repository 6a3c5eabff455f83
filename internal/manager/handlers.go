package manager

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/ksred/lobby-trading-api/internal/auth"
	"github.com/ksred/lobby-trading-api/internal/lobby"
	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/ksred/lobby-trading-api/pkg/response"
)

// handle maps lobby sentinels surfaced through the service before falling
// back to the shared error handling.
func handle(c *gin.Context, data interface{}, err error) {
	if errors.Is(err, lobby.ErrLobbyNotFound) {
		response.LobbyNotFound(c, err.Error())
		return
	}
	response.Handle(c, data, err)
}

// GinHandlers contains HTTP handlers for position endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type openPositionBody struct {
	LobbyID       string  `json:"lobby_id" binding:"required"`
	LongAsset     string  `json:"long_asset" binding:"required"`
	ShortAsset    string  `json:"short_asset" binding:"required"`
	Leverage      float64 `json:"leverage" binding:"required,gt=0"`
	UsdValue      float64 `json:"usd_value" binding:"required,gt=0"`
	Slippage      float64 `json:"slippage"`
	ExecutionType string  `json:"execution_type"`
}

// OpenPositionHandler handles POST requests to open a pair position
func (h *GinHandlers) OpenPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body openPositionBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if body.ExecutionType == "" {
			body.ExecutionType = "MARKET"
		}

		result, err := h.service.OpenPosition(c.Request.Context(), &types.CreatePositionRequest{
			Address:       auth.GetAddress(c),
			LobbyID:       body.LobbyID,
			LongAsset:     body.LongAsset,
			ShortAsset:    body.ShortAsset,
			Leverage:      body.Leverage,
			UsdValue:      body.UsdValue,
			Slippage:      body.Slippage,
			ExecutionType: body.ExecutionType,
		}, auth.GetVenueToken(c))
		if errors.Is(err, ErrInsufficientFunds) {
			handle(c, nil, err)
			return
		}
		handle(c, result, err)
	}
}

type closePositionBody struct {
	ExecutionType string `json:"execution_type"`
}

// ClosePositionHandler handles POST requests to close one position
// URL parameter: position_id
func (h *GinHandlers) ClosePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positionID := c.Param("position_id")
		if positionID == "" {
			response.BadRequest(c, "Position ID is required")
			return
		}

		var body closePositionBody
		_ = c.ShouldBindJSON(&body)

		result, err := h.service.ClosePosition(c.Request.Context(), positionID, auth.GetVenueToken(c))
		handle(c, result, err)
	}
}

type lobbyScopedBody struct {
	LobbyID string `json:"lobby_id" binding:"required"`
}

// CloseAllPositionsHandler handles POST requests to flatten the caller in a
// lobby
func (h *GinHandlers) CloseAllPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body lobbyScopedBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.CloseAllPositions(
			c.Request.Context(), auth.GetAddress(c), body.LobbyID, auth.GetVenueToken(c))
		handle(c, result, err)
	}
}

// GetPositionsHandler handles GET requests for the caller's live position
// snapshots
// Query parameter: lobby_id
func (h *GinHandlers) GetPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lobbyID := c.Query("lobby_id")
		if lobbyID == "" {
			response.BadRequest(c, "lobby_id query parameter is required")
			return
		}

		snapshots, err := h.service.GetPositions(
			c.Request.Context(), auth.GetAddress(c), lobbyID, auth.GetVenueToken(c))
		handle(c, snapshots, err)
	}
}

// StartSyncHandler handles POST requests to begin valuation sync
func (h *GinHandlers) StartSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body lobbyScopedBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.StartValuationSync(auth.GetAddress(c), body.LobbyID, auth.GetVenueToken(c))
		handle(c, gin.H{"active": true}, err)
	}
}

// StopSyncHandler handles DELETE requests to stop valuation sync
// Query parameter: lobby_id
func (h *GinHandlers) StopSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lobbyID := c.Query("lobby_id")
		if lobbyID == "" {
			response.BadRequest(c, "lobby_id query parameter is required")
			return
		}

		h.service.StopValuationSync(auth.GetAddress(c), lobbyID)
		response.Success(c, gin.H{"active": false})
	}
}

// SyncStatusHandler handles GET requests for the caller's sync status
func (h *GinHandlers) SyncStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		active := h.service.IsValuationSyncActive(auth.GetAddress(c))
		response.Success(c, gin.H{"active": active})
	}
}
