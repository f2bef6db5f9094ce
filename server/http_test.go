package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"arenasync/protocol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(t *testing.T, opts ...Option) *RoomManager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m, err := NewRoomManager(ctx, testConfig(), opts...)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := m.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		cancel()
	})
	return m
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdminConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)
	router := NewRouter(m)

	w := serve(router, http.MethodGet, "/admin/config?room=adm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d body=%s", w.Code, w.Body.String())
	}
	var cur Settings
	if err := json.Unmarshal(w.Body.Bytes(), &cur); err != nil {
		t.Fatal(err)
	}
	if cur.SoftLimit == nil || *cur.SoftLimit != 30 || *cur.HardLimit != 45 {
		t.Fatalf("defaults = %s", w.Body.String())
	}

	w = serve(router, http.MethodPost, "/admin/config?room=adm", `{"softLimit":10,"hardLimit":20,"keyframeEvery":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d body=%s", w.Code, w.Body.String())
	}
	cur = Settings{}
	if err := json.Unmarshal(w.Body.Bytes(), &cur); err != nil {
		t.Fatal(err)
	}
	if *cur.SoftLimit != 10 || *cur.HardLimit != 20 || *cur.KeyframeEvery != 5 {
		t.Fatalf("updated = %s", w.Body.String())
	}

	if w = serve(router, http.MethodPost, "/admin/config?room=adm", `{"softLimit":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", w.Code)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	m := newTestManager(t)
	router := NewRouter(m)
	if _, err := m.GetOrCreateRoom("met"); err != nil {
		t.Fatal(err)
	}

	if w := serve(router, http.MethodGet, "/metrics?room=met", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"room":"met"`) {
		t.Fatalf("metrics = %d %s", w.Code, w.Body.String())
	}
	w := serve(router, http.MethodGet, "/metrics?room=nope", "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "met") {
		t.Fatalf("missing room = %d %s", w.Code, w.Body.String())
	}
	if w := serve(router, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestShutdownRejectsNewRooms(t *testing.T) {
	m, err := NewRoomManager(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	r, err := m.GetOrCreateRoom("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrCreateRoom("y"); err != ErrRoomClosed {
		t.Fatalf("err = %v, want ErrRoomClosed", err)
	}
	if err := r.Do(context.Background(), func(*Room) {}); err != ErrRoomClosed {
		t.Fatalf("Do after close = %v", err)
	}
}

// readFrame 读取一帧并按类型解码
func readFrame(t *testing.T, ws *websocket.Conn) (string, func(v any) error) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, b, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	typ, decode, err := protocol.DecodeFrame(b, kind == websocket.BinaryMessage)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return typ, decode
}

// waitSelf 读到包含自己的快照为止
func waitSelf(t *testing.T, ws *websocket.Conn, id string, accept func(protocol.EntityState) bool) protocol.EntityState {
	t.Helper()
	for {
		typ, decode := readFrame(t, ws)
		if typ != protocol.MsgState {
			continue
		}
		var s protocol.Snapshot
		if err := decode(&s); err != nil {
			t.Fatal(err)
		}
		for _, e := range s.Entities {
			if e.ID == id && accept(e) {
				return e
			}
		}
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	m := newTestManager(t, WithObstacles())
	srv := httptest.NewServer(NewRouter(m))
	defer srv.Close()

	for _, codec := range []string{"json", "msgpack"} {
		t.Run(codec, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=ws-" + codec + "&codec=" + codec
			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer ws.Close()

			typ, decode := readFrame(t, ws)
			if typ != protocol.MsgWelcome {
				t.Fatalf("first frame = %s, want welcome", typ)
			}
			var welcome protocol.Welcome
			if err := decode(&welcome); err != nil {
				t.Fatal(err)
			}

			start := waitSelf(t, ws, welcome.EntityID, func(protocol.EntityState) bool { return true })
			dx := 1.0
			if start.X > welcome.World.Width/2 {
				dx = -1
			}
			frame, err := protocol.Encode(protocol.MsgInput, protocol.InputMessage{AX: dx, Axis: true, TS: 1, Seq: 1})
			if err != nil {
				t.Fatal(err)
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.Fatal(err)
			}

			moved := waitSelf(t, ws, welcome.EntityID, func(e protocol.EntityState) bool {
				return (e.X-start.X)*dx > 0
			})
			if moved.Y != start.Y {
				t.Fatalf("vertical drift: %v -> %v", start.Y, moved.Y)
			}
		})
	}
}

func TestWebSocketRejectsUnknownCodec(t *testing.T) {
	m := newTestManager(t)
	w := serve(NewRouter(m), http.MethodGet, "/ws?codec=xml", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
