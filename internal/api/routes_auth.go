package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/handlers"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler, guards routeGuards) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", guards.limit, handler.Register)
		auth.POST("/login", guards.limit, handler.Login)
		auth.GET("/verify", guards.limit, handler.Verify)
		auth.GET("/me", guards.requireAuth, handler.Me)
	}
}
