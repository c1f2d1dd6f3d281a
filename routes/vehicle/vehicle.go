package vehicle

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/controllers"
)

// Register registers vehicle routes (protected)
func Register(g *gin.RouterGroup, db *gorm.DB) {
	g.GET("/vehicles", controllers.ListVehicles(db))
	g.POST("/vehicles", controllers.CreateVehicle(db))
	g.DELETE("/vehicles/:vehicle_id", controllers.DeleteVehicle(db))
	g.POST("/vehicles/:vehicle_id/rotate-token", controllers.RotateScanToken(db))
}
