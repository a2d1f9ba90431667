package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/vitalhq/pulse/internal/events"
)

func pathID(c *gin.Context) (snowflake.ID, error) {
	raw := c.Param("id")
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", ErrInvalidRequest, raw)
	}
	return snowflake.ID(parsed), nil
}

func pathUserID(c *gin.Context) (int64, error) {
	id, err := pathID(c)
	return int64(id), err
}

func queryUserID(c *gin.Context) (int64, error) {
	raw := c.Query("user_id")
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: bad user_id %q", ErrInvalidRequest, raw)
	}
	return parsed, nil
}

// queryDate parses a YYYY-MM-DD query parameter, defaulting to today
// (UTC) when absent.
func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.ParseInLocation(events.DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad %s %q", ErrInvalidRequest, name, raw)
	}
	return parsed, nil
}

// requiredQueryDate is queryDate without the default.
func requiredQueryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrInvalidRequest, name)
	}
	return queryDate(c, name)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrInvalidRequest)
	}
	return time.ParseInLocation(events.DateLayout, raw, time.UTC)
}

func queryPage(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}
