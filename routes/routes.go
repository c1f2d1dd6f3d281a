package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/middleware"
	"pingme/pkg/chat"

	authRoutes "pingme/routes/auth"
	chatRoutes "pingme/routes/chat"
	profileRoutes "pingme/routes/profile"
	vehicleRoutes "pingme/routes/vehicle"
	websocketRoutes "pingme/routes/websocket"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc *chat.Service) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "PingMe contact backend running"})
	})

	// scanner side is anonymous by design
	chatRoutes.RegisterPublic(r, db, svc)
	websocketRoutes.Register(r, db, svc)
	authRoutes.RegisterPublic(r, db)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware())
	authRoutes.RegisterProtected(protected, db)
	profileRoutes.Register(protected, db)
	vehicleRoutes.Register(protected, db)
}
