package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/goal"
)

func (s *Server) CreateGoal(c *gin.Context) {
	var req goal.CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.goalSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) ListGoals(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, err := s.goalSvc.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": records})
}

func (s *Server) GetGoalProgress(c *gin.Context) {
	userID, err := pathUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views, err := s.goalSvc.Progress(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": views})
}

func (s *Server) PauseGoal(c *gin.Context) {
	s.goalTransition(c, s.goalSvc.Pause)
}

func (s *Server) ResumeGoal(c *gin.Context) {
	s.goalTransition(c, s.goalSvc.Resume)
}

func (s *Server) AbandonGoal(c *gin.Context) {
	s.goalTransition(c, s.goalSvc.Abandon)
}

func (s *Server) goalTransition(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (*goal.Goal, error)) {
	goalID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := fn(c.Request.Context(), goalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
