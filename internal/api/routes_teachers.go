package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/handlers"
)

func registerTeacherRoutes(api *gin.RouterGroup, teachers *handlers.TeacherHandler, ratings *handlers.RatingHandler, guards routeGuards) {
	group := api.Group("/teachers")
	{
		group.GET("", teachers.List)
		group.GET("/search", teachers.Search)
		group.GET("/:id", teachers.Get)
		group.GET("/:id/ratings", ratings.ListByTeacher)

		group.POST("", guards.requireAuth, guards.requireAdmin, teachers.Create)
		group.PUT("/:id", guards.requireAuth, guards.requireAdmin, teachers.Update)
		group.DELETE("/:id", guards.requireAuth, guards.requireAdmin, teachers.Delete)
	}
}
