package websocket

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/controllers"
	chatsvc "pingme/pkg/chat"
)

func Register(r *gin.Engine, db *gorm.DB, svc *chatsvc.Service) {
	r.GET("/ws/chat", controllers.ChatWS(db, svc))
	r.GET("/ws/owner/chats", controllers.OwnerChatsWS(db, svc))
}
