package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/workout"
)

func (s *Server) StartWorkout(c *gin.Context) {
	var req workout.StartWorkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.workoutSvc.Start(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) GetWorkout(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workoutID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.workoutSvc.Get(c.Request.Context(), userID, workoutID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) CompleteWorkout(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workoutID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req workout.CompleteWorkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.workoutSvc.Complete(c.Request.Context(), userID, workoutID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) CancelWorkout(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workoutID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.workoutSvc.Cancel(c.Request.Context(), userID, workoutID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteWorkout(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workoutID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.workoutSvc.Delete(c.Request.Context(), userID, workoutID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
