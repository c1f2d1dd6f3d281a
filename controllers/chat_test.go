package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pingme/models"
	"pingme/pkg/chat"
)

func testEnv(t *testing.T) (*gin.Engine, *gorm.DB, *chat.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Vehicle{}, &models.ChatSession{}, &models.ChatMessage{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	svc := chat.NewService(db, 30*time.Minute)

	r := gin.New()
	r.POST("/chat/:vehicle_id/session", StartChatSession(db, svc))
	r.GET("/chat/:vehicle_id/time", ChatTimeRemaining(svc))
	r.GET("/chat/sessions/:session_id/messages", ListChatMessages(svc))
	r.POST("/chat/messages", PostChatMessage(svc))
	r.DELETE("/chat/:vehicle_id/session/:session_id", EndChatSession(svc))
	r.GET("/ws/chat", ChatWS(db, svc))
	return r, db, svc
}

func seedVehicle(t *testing.T, db *gorm.DB) models.Vehicle {
	t.Helper()
	v := models.Vehicle{OwnerID: 1, PlateNumber: "B 1234 ABC", ScanToken: uuid.NewString()}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return v
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestStartChatSessionCreatesAndReuses(t *testing.T) {
	r, db, _ := testEnv(t)
	v := seedVehicle(t, db)
	path := "/chat/" + strconv.Itoa(int(v.ID)) + "/session"

	w, resp := doJSON(t, r, http.MethodPost, path, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sid, _ := resp["session_id"].(string)
	if sid == "" {
		t.Fatal("expected a session_id in the response")
	}
	if m, ok := resp["minutes_remaining"].(float64); !ok || int(m) != 30 {
		t.Fatalf("expected 30 minutes remaining, got %v", resp["minutes_remaining"])
	}

	// a second start before expiry resolves to the same session
	w, resp = doJSON(t, r, http.MethodPost, path, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on reuse, got %d", w.Code)
	}
	if again, _ := resp["session_id"].(string); again != sid {
		t.Fatalf("expected same session on reuse, got %s and %s", sid, again)
	}
}

func TestStartChatSessionUnknownVehicle(t *testing.T) {
	r, _, _ := testEnv(t)

	w, _ := doJSON(t, r, http.MethodPost, "/chat/999/session", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown vehicle, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/chat/0/session", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad vehicle id, got %d", w.Code)
	}
}

func TestPostChatMessage(t *testing.T) {
	r, db, svc := testEnv(t)
	v := seedVehicle(t, db)
	sid, err := svc.GetOrCreateSession(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("GetOrCreateSession err: %v", err)
	}

	w, resp := doJSON(t, r, http.MethodPost, "/chat/messages", gin.H{
		"session_id": sid, "sender": models.SenderScanner, "text": "is this your car?",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if resp["text"] != "is this your car?" || resp["sender"] != models.SenderScanner {
		t.Fatalf("unexpected message response %v", resp)
	}
	if id, _ := resp["id"].(string); id == "" {
		t.Fatal("expected a message id")
	}

	// identical consecutive text from the same sender is throttled
	w, _ = doJSON(t, r, http.MethodPost, "/chat/messages", gin.H{
		"session_id": sid, "sender": models.SenderScanner, "text": "is this your car?",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for duplicate text, got %d", w.Code)
	}

	// empty text fails validation
	w, _ = doJSON(t, r, http.MethodPost, "/chat/messages", gin.H{
		"session_id": sid, "sender": models.SenderScanner, "text": "   ",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", w.Code)
	}

	// unknown session fails validation too
	w, _ = doJSON(t, r, http.MethodPost, "/chat/messages", gin.H{
		"session_id": "no-such-session", "sender": models.SenderScanner, "text": "hello?",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown session, got %d", w.Code)
	}

	// the snapshot endpoint serves what was stored
	w, resp = doJSON(t, r, http.MethodGet, "/chat/sessions/"+sid+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	msgs, _ := resp["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
}

func TestEndChatSessionIdempotent(t *testing.T) {
	r, db, svc := testEnv(t)
	v := seedVehicle(t, db)
	sid, _ := svc.GetOrCreateSession(context.Background(), v.ID)
	path := "/chat/" + strconv.Itoa(int(v.ID)) + "/session/" + sid

	for i := 0; i < 2; i++ {
		w, _ := doJSON(t, r, http.MethodDelete, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("end attempt %d: expected 200, got %d", i+1, w.Code)
		}
	}

	// sends against the ended session are rejected
	w, _ := doJSON(t, r, http.MethodPost, "/chat/messages", gin.H{
		"session_id": sid, "sender": models.SenderOwner, "text": "too late",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 after end, got %d", w.Code)
	}
}

type wsEvent struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	PlateNumber      string `json:"plate_number"`
	MinutesRemaining int    `json:"minutes_remaining"`
	Error            string `json:"error"`
	Messages         []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"messages"`
}

func dialChatWS(t *testing.T, srv *httptest.Server, vehicleID uint) (*websocket.Conn, chan wsEvent) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?vehicle_id=" + strconv.Itoa(int(vehicleID))
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	// the reader goroutine keeps the client responsive to server pings
	events := make(chan wsEvent, 16)
	go func() {
		defer close(events)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var ev wsEvent
			if json.Unmarshal(msg, &ev) == nil {
				events <- ev
			}
		}
	}()
	return c, events
}

// nextEvent skips countdown ticks, which are timing noise for these tests.
func nextEvent(t *testing.T, events chan wsEvent) wsEvent {
	t.Helper()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("ws connection closed before the expected event")
			}
			if ev.Type == "time" {
				continue
			}
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for ws event")
		}
	}
}

func TestChatWSLifecycle(t *testing.T) {
	r, db, svc := testEnv(t)
	v := seedVehicle(t, db)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, events := dialChatWS(t, srv, v.ID)

	ready := nextEvent(t, events)
	if ready.Type != "ready" || ready.SessionID == "" {
		t.Fatalf("expected ready event, got %+v", ready)
	}
	if ready.PlateNumber != v.PlateNumber || ready.MinutesRemaining != 30 {
		t.Fatalf("unexpected ready payload %+v", ready)
	}

	snap := nextEvent(t, events)
	if snap.Type != "snapshot" || len(snap.Messages) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", snap)
	}

	if err := c.WriteJSON(gin.H{"type": "send", "text": "hello there"}); err != nil {
		t.Fatalf("write send frame: %v", err)
	}
	snap = nextEvent(t, events)
	if snap.Type != "snapshot" || len(snap.Messages) != 1 || snap.Messages[0].Text != "hello there" {
		t.Fatalf("expected snapshot with the sent message, got %+v", snap)
	}

	// blank text draws an inline error and leaves the connection up
	if err := c.WriteJSON(gin.H{"type": "send", "text": "   "}); err != nil {
		t.Fatalf("write blank frame: %v", err)
	}
	ev := nextEvent(t, events)
	if ev.Type != "error" || ev.Error == "" {
		t.Fatalf("expected inline error for blank text, got %+v", ev)
	}

	if err := c.WriteJSON(gin.H{"type": "end"}); err != nil {
		t.Fatalf("write end frame: %v", err)
	}
	ev = nextEvent(t, events)
	if ev.Type != "session_ended" {
		t.Fatalf("expected session_ended, got %+v", ev)
	}

	st := svc.State(context.Background(), v.ID)
	if st.IsActive {
		t.Fatal("expected session inactive after end frame")
	}
}

func TestChatWSUnknownVehicleRejected(t *testing.T) {
	r, _, _ := testEnv(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?vehicle_id=999"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown vehicle")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestChatWSSurvivesIdleBeyondReadWindow(t *testing.T) {
	oldRead, oldPing := wsReadWait, wsPingInterval
	wsReadWait = 150 * time.Millisecond
	wsPingInterval = 50 * time.Millisecond
	defer func() { wsReadWait, wsPingInterval = oldRead, oldPing }()

	r, db, svc := testEnv(t)
	v := seedVehicle(t, db)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, events := dialChatWS(t, srv, v.ID)

	ready := nextEvent(t, events)
	if ready.Type != "ready" {
		t.Fatalf("expected ready event, got %+v", ready)
	}
	if snap := nextEvent(t, events); snap.Type != "snapshot" {
		t.Fatalf("expected initial snapshot, got %+v", snap)
	}

	// idle for several read windows; only server pings and client pongs keep
	// the deadline fresh
	time.Sleep(5 * wsReadWait)

	if _, err := svc.SendMessage(context.Background(), ready.SessionID, models.SenderOwner, "still there?"); err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}
	snap := nextEvent(t, events)
	if snap.Type != "snapshot" || len(snap.Messages) != 1 || snap.Messages[0].Text != "still there?" {
		t.Fatalf("expected snapshot after idle period, got %+v", snap)
	}
}
