package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/middleware"
	"github.com/charlesng35/teacherrate/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user id, if any.
func currentUserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

func currentActor(c *gin.Context) services.Actor {
	id, _ := currentUserID(c)
	return services.Actor{
		UserID:  id,
		IsAdmin: c.GetBool(middleware.CtxIsAdminKey),
	}
}
