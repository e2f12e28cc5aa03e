package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-scheduler-api/internal/middleware"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
	"github.com/noah-isme/room-scheduler-api/pkg/response"
)

func actorID(c *gin.Context) string {
	if claims := middleware.ActorFromContext(c); claims != nil {
		return claims.Actor()
	}
	return ""
}

// pageParams reads page and limit; malformed values fall back to the repository defaults.
func pageParams(c *gin.Context) (page, size int) {
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		size = v
	}
	return page, size
}

// optionalDate parses a YYYY-MM-DD query value, ignoring anything that does not parse.
func optionalDate(c *gin.Context, key string) *models.Date {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil
	}
	return &d
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return false
	}
	return true
}

func withMeta(c *gin.Context, cacheHit bool) map[string]interface{} {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta
}
