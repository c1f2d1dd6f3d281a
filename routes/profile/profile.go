package profile

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/controllers"
)

// Register registers profile routes (protected)
func Register(g *gin.RouterGroup, db *gorm.DB) {
	g.GET("/profile", controllers.Profile(db))
	g.PUT("/profile", controllers.Profile(db))
}
