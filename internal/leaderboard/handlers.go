package leaderboard

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/ksred/lobby-trading-api/internal/auth"
	"github.com/ksred/lobby-trading-api/internal/lobby"
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

// GinHandlers contains HTTP handlers for standings endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetLeaderboardHandler handles GET requests for a lobby's ranked standings
// URL parameter: lobby_id
func (h *GinHandlers) GetLeaderboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.service.GetLeaderboard(c.Param("lobby_id"))
		handle(c, entries, err)
	}
}

// GetBalanceHistoryHandler handles GET requests for the caller's
// account-value chart data in a lobby
// URL parameter: lobby_id
func (h *GinHandlers) GetBalanceHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := h.service.GetBalanceHistory(auth.GetAddress(c), c.Param("lobby_id"))
		response.Handle(c, history, err)
	}
}
