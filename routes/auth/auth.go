package auth

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/controllers"
)

// RegisterPublic registers unauthenticated auth routes
func RegisterPublic(r *gin.Engine, db *gorm.DB) {
	r.POST("/auth/register", controllers.Register(db))
	r.POST("/auth/login", controllers.Login(db))
}

// RegisterProtected registers auth routes that need a valid token
func RegisterProtected(g *gin.RouterGroup, db *gorm.DB) {
	g.GET("/auth/me", controllers.Me(db))
	g.POST("/auth/logout", controllers.Logout())
}
