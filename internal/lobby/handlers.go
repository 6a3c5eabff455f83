package lobby

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/lobby-trading-api/internal/auth"
	"github.com/ksred/lobby-trading-api/pkg/response"
)

// handle maps this package's sentinels before falling back to the shared
// error handling. The shared layer cannot import this package.
func handle(c *gin.Context, data interface{}, err error) {
	switch {
	case errors.Is(err, ErrLobbyNotFound):
		response.LobbyNotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyJoined):
		response.Conflict(c, err.Error())
	default:
		response.Handle(c, data, err)
	}
}

// GinHandlers contains HTTP handlers for lobby endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type createLobbyBody struct {
	Name      string  `json:"name" binding:"required"`
	StartTime int64   `json:"start_time" binding:"required"` // unix millis
	EndTime   int64   `json:"end_time" binding:"required"`
	BuyIn     float64 `json:"buy_in" binding:"required,gt=0"`
	Split     float64 `json:"split"`
	IsDemo    bool    `json:"is_demo"`
}

// CreateLobbyHandler handles POST requests to create a lobby. The creator
// joins automatically.
func (h *GinHandlers) CreateLobbyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createLobbyBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		row, err := h.service.CreateLobby(auth.GetAddress(c), CreateLobbyInput{
			Name:      body.Name,
			StartTime: time.UnixMilli(body.StartTime),
			EndTime:   time.UnixMilli(body.EndTime),
			BuyIn:     body.BuyIn,
			Split:     body.Split,
			IsDemo:    body.IsDemo,
		})
		if err != nil && (err == errStartInPast || err == errEndBeforeStart || err == errDurationTooLong) {
			response.BadRequest(c, err.Error())
			return
		}
		handle(c, row, err)
	}
}

// ListLobbiesHandler handles GET requests for all lobbies
func (h *GinHandlers) ListLobbiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := h.service.ListLobbies()
		handle(c, rows, err)
	}
}

// GetLobbyHandler handles GET requests for one lobby
// URL parameter: lobby_id
func (h *GinHandlers) GetLobbyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := h.service.GetLobby(c.Param("lobby_id"))
		handle(c, row, err)
	}
}

// JoinLobbyHandler handles POST requests to join a lobby
// URL parameter: lobby_id
func (h *GinHandlers) JoinLobbyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.service.Join(auth.GetAddress(c), c.Param("lobby_id"))
		handle(c, account, err)
	}
}
