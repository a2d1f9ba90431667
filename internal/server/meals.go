package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/meal"
)

func (s *Server) CreateMeal(c *gin.Context) {
	var req meal.CreateMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.mealSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) GetMeal(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	mealID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.mealSvc.Get(c.Request.Context(), userID, mealID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) ListMeals(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := queryDate(c, "date")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, err := s.mealSvc.ListByDate(c.Request.Context(), userID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meals": records})
}

func (s *Server) DeleteMeal(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	mealID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.mealSvc.Delete(c.Request.Context(), userID, mealID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
