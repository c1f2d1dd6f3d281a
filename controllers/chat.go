package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pingme/middleware"
	"pingme/models"
	"pingme/pkg/cache"
	"pingme/pkg/chat"
	"pingme/pkg/config"
)

type scanResolution struct {
	VehicleID   uint   `json:"vehicle_id"`
	PlateNumber string `json:"plate_number"`
}

// ResolveScan maps a QR scan token to the vehicle it belongs to. Resolutions
// are cached briefly; token rotation and vehicle deletion invalidate the key.
func ResolveScan(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Param("token"))
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "scan token is required"})
			return
		}

		ck := cache.KeyFromStrings("scan", token)
		if v, ok := cache.Default().Get(ck); ok {
			if res, ok2 := v.(scanResolution); ok2 {
				c.JSON(http.StatusOK, res)
				return
			}
		}

		var vehicle models.Vehicle
		if err := db.Where("scan_token = ?", token).First(&vehicle).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"msg": "unknown code"})
			return
		}

		res := scanResolution{VehicleID: vehicle.ID, PlateNumber: vehicle.PlateNumber}
		cache.Default().Set(ck, res, time.Duration(config.ScanCacheTTLSeconds)*time.Second)
		c.JSON(http.StatusOK, res)
	}
}

// StartChatSession resolves or creates the vehicle's session.
func StartChatSession(db *gorm.DB, svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vid, _ := strconv.Atoi(c.Param("vehicle_id"))
		if vid <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid vehicle id"})
			return
		}

		var vehicle models.Vehicle
		if err := db.First(&vehicle, vid).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"msg": "vehicle not found"})
			return
		}

		sessionID, err := svc.GetOrCreateSession(c.Request.Context(), vehicle.ID)
		if err != nil {
			log.Printf("[chat] start session for vehicle %d: %v", vehicle.ID, err)
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to start chat"})
			return
		}

		st := svc.State(c.Request.Context(), vehicle.ID)
		minutes, err := svc.TimeRemaining(c.Request.Context(), vehicle.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to start chat"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"session_id":        sessionID,
			"expires_at":        st.ExpiresAt,
			"minutes_remaining": minutes,
		})
	}
}

// ChatTimeRemaining reports the minutes left on the vehicle's session; zero
// when none is active.
func ChatTimeRemaining(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vid, _ := strconv.Atoi(c.Param("vehicle_id"))
		if vid <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid vehicle id"})
			return
		}

		minutes, err := svc.TimeRemaining(c.Request.Context(), uint(vid))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to read session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"minutes_remaining": minutes})
	}
}

// ListChatMessages returns the ordered message snapshot of a session. Also
// the recovery path when a live subscription drops.
func ListChatMessages(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.Param("session_id"))
		msgs, err := svc.Messages(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": messagesJSON(msgs)})
	}
}

func messagesJSON(msgs []models.ChatMessage) []gin.H {
	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gin.H{
			"id":        m.MessageID,
			"sender":    m.Sender,
			"text":      m.Text,
			"timestamp": m.Timestamp,
		})
	}
	return out
}

// PostChatMessage appends a message to an active session.
func PostChatMessage(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			SessionID string `json:"session_id"`
			Sender    string `json:"sender"`
			Text      string `json:"text"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}

		if !middleware.DuplicateGuard(body.Sender+"@"+body.SessionID, body.Text) {
			c.JSON(http.StatusTooManyRequests, gin.H{"msg": "duplicate message"})
			return
		}

		msg, err := svc.SendMessage(c.Request.Context(), body.SessionID, body.Sender, body.Text)
		if errors.Is(err, chat.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
			return
		}
		if err != nil {
			log.Printf("[chat] send message: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to send message"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":        msg.MessageID,
			"sender":    msg.Sender,
			"text":      msg.Text,
			"timestamp": msg.Timestamp,
		})
	}
}

// EndChatSession marks the session inactive. Safe to call repeatedly or with
// a session that never existed.
func EndChatSession(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vid, _ := strconv.Atoi(c.Param("vehicle_id"))
		sessionID := strings.TrimSpace(c.Param("session_id"))
		if vid <= 0 || sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}

		if err := svc.EndSession(c.Request.Context(), uint(vid), sessionID); err != nil {
			log.Printf("[chat] end session %s: %v", sessionID, err)
			c.JSON(http.StatusBadGateway, gin.H{"msg": "failed to end chat"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "chat ended"})
	}
}
