package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"arenasync/game"
	"arenasync/intent"
	"arenasync/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64

	// 读协程在解析之前的帧速守卫，只挡明显的洪泛；真正的限流策略在 gate
	frameRate  = 120
	frameBurst = 60
)

// ClientConn 负责发送（写）数据到客户端的轻量包装；实现 Peer
type ClientConn struct {
	ws     *websocket.Conn
	codec  protocol.Codec
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewClientConn(ws *websocket.Conn, codec protocol.Codec) *ClientConn {
	return &ClientConn{
		ws:     ws,
		codec:  codec,
		send:   make(chan []byte, sendQueue),
		closed: make(chan struct{}),
	}
}

// Codec 下行编码
func (c *ClientConn) Codec() protocol.Codec { return c.codec }

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close 关闭底层连接并结束写协程；可重复调用
func (c *ClientConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()
	kind := websocket.TextMessage
	if c.codec.Binary() {
		kind = websocket.BinaryMessage
	}
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(kind, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端输入，结构校验后交给房间；不合法的帧静默丢弃
func (c *ClientConn) readPump(room *Room, id game.EntityID) {
	defer c.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该实体
	defer room.Leave(id)
	c.ws.SetReadLimit(4 << 10)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	guard := rate.NewLimiter(frameRate, frameBurst)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !guard.Allow() {
			room.metrics.IncThrottled()
			continue
		}
		env, err := protocol.DecodeEnvelope(payload)
		if err != nil || env.T != protocol.MsgInput {
			room.metrics.IncMalformed()
			continue
		}
		s, err := intent.Parse(env.P)
		if err != nil {
			room.metrics.IncMalformed()
			continue
		}
		room.Submit(id, s)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=room-1&codec=msgpack
func (m *RoomManager) HandleWS(c *gin.Context) {
	codec, err := protocol.ParseCodec(c.DefaultQuery("codec", m.cfg.Server.Codec))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := m.GetOrCreateRoom(c.DefaultQuery("room", DefaultRoom))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}

	id := game.EntityID(uuid.NewString())
	client := NewClientConn(ws, codec)
	room.Join(id, c.ClientIP(), client)

	go client.writePump()
	go client.readPump(room, id)
}
