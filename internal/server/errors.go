package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/goal"
	"github.com/vitalhq/pulse/internal/meal"
	"github.com/vitalhq/pulse/internal/user"
	"github.com/vitalhq/pulse/internal/workout"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "email already registered",
		}
	case errors.Is(err, workout.ErrInvalidTransition),
		errors.Is(err, goal.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, meal.ErrInvalidUser),
		errors.Is(err, meal.ErrInvalidDate),
		errors.Is(err, meal.ErrInvalidMealType),
		errors.Is(err, meal.ErrInvalidCalories),
		errors.Is(err, workout.ErrInvalidUser),
		errors.Is(err, workout.ErrInvalidDate),
		errors.Is(err, workout.ErrInvalidDuration),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrInvalidWeight),
		errors.Is(err, user.ErrInvalidDate),
		errors.Is(err, goal.ErrInvalidKind),
		errors.Is(err, goal.ErrInvalidTarget):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, meal.ErrMealNotFound),
		errors.Is(err, workout.ErrWorkoutNotFound),
		errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, goal.ErrGoalNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
