package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDailySummary(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.summarySvc.Daily(c.Request.Context(), userID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) GetRangeSummary(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	start, err := requiredQueryDate(c, "start")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	end, err := requiredQueryDate(c, "end")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.summarySvc.Range(c.Request.Context(), userID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) GetWeeklySummary(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.summarySvc.Weekly(c.Request.Context(), userID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) GetMonthlySummary(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.summarySvc.Monthly(c.Request.Context(), userID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
