package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"pingme/middleware"
	"pingme/models"
	"pingme/pkg/chat"
	"pingme/pkg/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

// Keepalive: browsers cannot initiate pings, so the server pings on an
// interval and the pong handler extends the read deadline. An idle-but-open
// chat view must survive the whole session TTL. Vars so tests can shorten
// them.
var (
	wsReadWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

func setupKeepalive(raw *websocket.Conn) {
	raw.SetReadLimit(1 << 20) // 1MB
	_ = raw.SetReadDeadline(time.Now().Add(wsReadWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsReadWait))
	})
}

// ping is safe to call concurrently with other writes; gorilla allows
// WriteControl alongside WriteJSON.
func ping(raw *websocket.Conn) error {
	return raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// wsConn serializes writes; snapshots arrive from other parties' goroutines
// while the countdown writes from the connection's own loop.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

type wsInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatWS is the chat-view transport for both parties.
// Server protocol (JSON messages):
//
//	<- {type: "ready", session_id, plate_number, minutes_remaining}
//	<- {type: "snapshot", messages: [...]}
//	<- {type: "time", minutes_remaining}
//	<- {type: "session_ended"}
//	<- {type: "error", error: string}
//	-> {type: "send", text: string}
//	-> {type: "end"}
//
// The connection resolves or reuses the vehicle's session on open, re-derives
// the remaining time on a fixed interval, and auto-ends the session when the
// countdown reaches zero. Everything the connection registered is released on
// disconnect.
func ChatWS(db *gorm.DB, svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vid, _ := strconv.Atoi(c.Query("vehicle_id"))
		if vid <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "vehicle_id query is required"})
			return
		}

		role := strings.ToLower(strings.TrimSpace(c.Query("role")))
		if role == "" {
			role = models.SenderScanner
		}
		if role != models.SenderOwner && role != models.SenderScanner {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "role must be owner or scanner"})
			return
		}

		var vehicle models.Vehicle
		if err := db.First(&vehicle, vid).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"msg": "vehicle not found"})
			return
		}

		// Owner side authenticates via ?token=JWT and must own the vehicle.
		if role == models.SenderOwner {
			userID, _, ok := middleware.ParseUserID(strings.TrimSpace(c.Query("token")))
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
				return
			}
			uid, _ := strconv.Atoi(userID)
			if vehicle.OwnerID != uint(uid) {
				c.JSON(http.StatusForbidden, gin.H{"msg": "not your vehicle"})
				return
			}
		}

		raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade error: %v", err)
			return
		}
		defer raw.Close()
		conn := &wsConn{conn: raw}
		setupKeepalive(raw)

		ctx := c.Request.Context()

		// Loading: resolve the session and current countdown. Any failure
		// here is fatal to the view; the client retries by re-dialing.
		sessionID, err := svc.GetOrCreateSession(ctx, vehicle.ID)
		if err != nil {
			log.Printf("[ws] init session for vehicle %d: %v", vehicle.ID, err)
			_ = conn.writeJSON(gin.H{"type": "error", "error": "failed to start chat"})
			return
		}
		minutes, err := svc.TimeRemaining(ctx, vehicle.ID)
		if err != nil {
			_ = conn.writeJSON(gin.H{"type": "error", "error": "failed to start chat"})
			return
		}
		_ = conn.writeJSON(gin.H{
			"type":              "ready",
			"session_id":        sessionID,
			"plate_number":      vehicle.PlateNumber,
			"minutes_remaining": minutes,
		})

		// Ready: live message snapshots.
		unsubscribe, err := svc.SubscribeMessages(ctx, sessionID, func(msgs []models.ChatMessage) {
			if err := conn.writeJSON(gin.H{"type": "snapshot", "messages": messagesJSON(msgs)}); err != nil {
				log.Printf("[ws] snapshot write: %v", err)
			}
		})
		if err != nil {
			_ = conn.writeJSON(gin.H{"type": "error", "error": "failed to subscribe"})
			return
		}
		defer unsubscribe()

		// Reader goroutine for send/end frames. done stops it from blocking
		// on a handler that already returned.
		done := make(chan struct{})
		defer close(done)
		inbound := make(chan wsInbound)
		readErr := make(chan error, 1)
		go func() {
			for {
				mt, msg, err := raw.ReadMessage()
				if err != nil {
					readErr <- err
					return
				}
				// any inbound frame proves liveness
				_ = raw.SetReadDeadline(time.Now().Add(wsReadWait))
				if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
					continue
				}
				var in wsInbound
				if err := json.Unmarshal(msg, &in); err != nil {
					continue
				}
				select {
				case inbound <- in:
				case <-done:
					return
				}
			}
		}()

		endAndNotify := func() {
			if err := svc.EndSession(ctx, vehicle.ID, sessionID); err != nil {
				log.Printf("[ws] end session %s: %v", sessionID, err)
			}
			_ = conn.writeJSON(gin.H{"type": "session_ended"})
		}

		ticker := time.NewTicker(time.Duration(config.CountdownSeconds) * time.Second)
		defer ticker.Stop()
		pings := time.NewTicker(wsPingInterval)
		defer pings.Stop()

		for {
			select {
			case <-pings.C:
				if err := ping(raw); err != nil {
					return
				}
			case <-ticker.C:
				minutes, err := svc.TimeRemaining(ctx, vehicle.ID)
				if err != nil {
					// soft failure: keep the view alive with last-known state
					log.Printf("[ws] countdown refresh: %v", err)
					continue
				}
				_ = conn.writeJSON(gin.H{"type": "time", "minutes_remaining": minutes})
				if minutes <= 0 {
					endAndNotify()
					return
				}
			case in := <-inbound:
				switch strings.ToLower(strings.TrimSpace(in.Type)) {
				case "send":
					if !middleware.DuplicateGuard(role+"@"+sessionID, in.Text) {
						_ = conn.writeJSON(gin.H{"type": "error", "error": "duplicate message"})
						continue
					}
					if _, err := svc.SendMessage(ctx, sessionID, role, in.Text); err != nil {
						if errors.Is(err, chat.ErrValidation) {
							_ = conn.writeJSON(gin.H{"type": "error", "error": err.Error()})
							continue
						}
						log.Printf("[ws] send message: %v", err)
						_ = conn.writeJSON(gin.H{"type": "error", "error": "failed to send message"})
					}
				case "end":
					endAndNotify()
					return
				}
			case err := <-readErr:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[ws] read error: %v", err)
				}
				return
			}
		}
	}
}

// OwnerChatsWS streams the owner's active-chat list.
// Server protocol:
//
//	<- {type: "active_chats", chats: [{vehicle_id, session_id, plate_number,
//	    expires_at, minutes_remaining}]}
//
// Every vehicle of the authenticated owner is watched concurrently; the full
// list is re-sent whenever any vehicle's session state changes. All watches
// are released together on disconnect.
func OwnerChatsWS(db *gorm.DB, svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := middleware.ParseUserID(strings.TrimSpace(c.Query("token")))
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
			return
		}
		uid, _ := strconv.Atoi(userID)

		var vehicles []models.Vehicle
		if err := db.Where("owner_id = ?", uid).Find(&vehicles).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}

		raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade error: %v", err)
			return
		}
		defer raw.Close()
		conn := &wsConn{conn: raw}
		setupKeepalive(raw)

		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(wsPingInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					if err := ping(raw); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		ctx := c.Request.Context()
		list := chat.NewActiveList()
		plates := make(map[uint]string, len(vehicles))
		for _, v := range vehicles {
			plates[v.ID] = v.PlateNumber
		}

		sendList := func() {
			now := time.Now()
			entries := list.Entries()
			chats := make([]gin.H, 0, len(entries))
			for _, e := range entries {
				chats = append(chats, gin.H{
					"vehicle_id":        e.VehicleID,
					"session_id":        e.SessionID,
					"plate_number":      e.PlateNumber,
					"expires_at":        e.ExpiresAt,
					"minutes_remaining": chat.MinutesUntil(e.ExpiresAt, now),
				})
			}
			if err := conn.writeJSON(gin.H{"type": "active_chats", "chats": chats}); err != nil {
				log.Printf("[ws] list write: %v", err)
			}
		}

		cancels := make([]func(), 0, len(vehicles))
		for _, v := range vehicles {
			plate := plates[v.ID]
			cancel := svc.WatchVehicle(ctx, v.ID, func(st chat.SessionState) {
				if list.Apply(st, plate) {
					sendList()
				}
			})
			cancels = append(cancels, cancel)
		}
		defer func() {
			for _, cancel := range cancels {
				cancel()
			}
		}()

		// initial list, even when empty
		sendList()

		// block until the client goes away; pongs keep the deadline fresh
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[ws] read error: %v", err)
				}
				return
			}
			_ = raw.SetReadDeadline(time.Now().Add(wsReadWait))
		}
	}
}
