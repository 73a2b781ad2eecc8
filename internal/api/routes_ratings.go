package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/handlers"
)

func registerRatingRoutes(api *gin.RouterGroup, ratings *handlers.RatingHandler, guards routeGuards) {
	group := api.Group("/ratings")
	{
		group.GET("", ratings.List)
		group.GET("/:id", ratings.Get)

		group.POST("", guards.limit, guards.optionalAuth, ratings.Create)
		group.PUT("/:id", guards.limit, guards.requireAuth, ratings.Update)
		group.DELETE("/:id", guards.limit, guards.requireAuth, ratings.Delete)
	}

	api.GET("/users/:id/ratings", ratings.ListByUser)
}
