package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListAchievements(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, size := queryPage(c)

	resp, err := s.achievementSvc.List(c.Request.Context(), userID, page, size)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
