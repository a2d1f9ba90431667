package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/replay"
)

type rebuildRequest struct {
	UserID int64  `json:"user_id,string"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func (s *Server) RebuildSummary(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	start, err := parseDate(req.Start)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	end, err := parseDate(req.End)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	days, err := s.rebuilder.Rebuild(c.Request.Context(), req.UserID, start, end)
	if err != nil {
		if errors.Is(err, replay.ErrWindowTooLarge) {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rebuilt_days": days})
}
