package chat

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/controllers"
	"pingme/middleware"
	chatsvc "pingme/pkg/chat"
)

// RegisterPublic registers the anonymous scanner-facing chat routes. Session
// creation and message posting are rate limited per client.
func RegisterPublic(r *gin.Engine, db *gorm.DB, svc *chatsvc.Service) {
	r.GET("/scan/:token", controllers.ResolveScan(db))
	r.POST("/chat/:vehicle_id/session", middleware.RateLimit(), controllers.StartChatSession(db, svc))
	r.GET("/chat/:vehicle_id/time", controllers.ChatTimeRemaining(svc))
	r.DELETE("/chat/:vehicle_id/session/:session_id", controllers.EndChatSession(svc))
	r.GET("/chat/sessions/:session_id/messages", controllers.ListChatMessages(svc))
	r.POST("/chat/messages", middleware.RateLimit(), controllers.PostChatMessage(svc))
}
