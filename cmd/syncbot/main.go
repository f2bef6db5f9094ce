// syncbot 是一个无界面的客户端：连上房间，用 AI 产生输入，
// 在本地跑预测、纠正与插值，并定期打印镜像与服务端的偏差。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arenasync/ai"
	"arenasync/client"
	"arenasync/game"
	"arenasync/protocol"
)

type inbound struct {
	typ    string
	decode func(v any) error
	at     time.Time
}

func main() {
	base := flag.String("url", "ws://localhost:8080/ws", "server websocket url")
	room := flag.String("room", "room-1", "room to join")
	codec := flag.String("codec", "json", "snapshot codec: json or msgpack")
	duration := flag.Duration("duration", 30*time.Second, "how long to play (0 = until interrupted)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	log := logger.Sugar()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, log, fmt.Sprintf("%s?room=%s&codec=%s", *base, *room, *codec)); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		log.Errorf("syncbot: %v", err)
	}
}

func run(ctx context.Context, log *zap.SugaredLogger, wsURL string) error {
	conn, err := dialWithRetry(ctx, wsURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	frames := make(chan inbound, 64)
	done := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go readLoop(conn, frames, done, quit)

	var mirror *client.Mirror
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case f := <-frames:
		if f.typ != protocol.MsgWelcome {
			return fmt.Errorf("expected welcome, got %q", f.typ)
		}
		var w protocol.Welcome
		if err := f.decode(&w); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		mirror = client.NewMirror(client.DefaultConfig(), w)
		log.Infow("joined", "id", w.EntityID, "tickHz", w.TickHz, "broadcastHz", w.BroadcastHz)
	}

	agent := ai.NewAgent(mirror.SelfID(), rand.New(rand.NewSource(time.Now().UnixNano())), ai.DefaultTuning())
	inputTicker := time.NewTicker(time.Second / 60)
	defer inputTicker.Stop()
	reportTicker := time.NewTicker(2 * time.Second)
	defer reportTicker.Stop()

	var (
		current   game.Vec2
		lastInput = time.Now()
		server    game.Vec2
		snapshots int
	)
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-done:
			return err
		case f := <-frames:
			if f.typ != protocol.MsgState {
				continue
			}
			var s protocol.Snapshot
			if err := f.decode(&s); err != nil {
				log.Warnw("decode snapshot", "err", err)
				continue
			}
			corrected, err := mirror.Apply(s, f.at)
			if errors.Is(err, client.ErrNoKeyframe) {
				continue
			}
			if err != nil {
				log.Warnw("apply snapshot", "seq", s.Seq, "err", err)
				continue
			}
			snapshots++
			for _, e := range s.Entities {
				if game.EntityID(e.ID) == mirror.SelfID() {
					server = e.Pos()
				}
			}
			if corrected {
				log.Debugw("correction", "seq", s.Seq, "threshold", mirror.Reconciler().Threshold())
			}
		case now := <-inputTicker.C:
			if !mirror.Placed() {
				continue
			}
			mirror.Predict(current, now.Sub(lastInput), now)
			lastInput = now
			agent.Observe(mirror.View(now))
			sample, ok := agent.Next(now)
			if !ok {
				continue
			}
			current = sample.Intent
			frame, err := protocol.Encode(protocol.MsgInput, protocol.InputFromSample(sample))
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(now.Add(time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case now := <-reportTicker.C:
			rec := mirror.Reconciler()
			clock := mirror.Clock()
			log.Infow("mirror",
				"snapshots", snapshots,
				"clockSynced", clock.Synced(),
				"serverNow", clock.Now(now).UnixMilli(),
				"remotes", mirror.Remotes(),
				"divergence", rec.Position().Dist(server),
				"corrections", rec.Corrections(),
				"breakerTrips", rec.BreakerTrips(),
				"coolingDown", rec.CoolingDown(now),
				"interpDelay", mirror.Interpolator().Delay(),
				"behavior", agent.Decision().Behavior,
				"intent", agent.Intent())
		}
	}
}

// readLoop 把收到的帧按类型解出后交给主循环；主循环是镜像唯一的写入者。
// 主循环退出后 quit 关闭，读协程不再阻塞在 frames 上。
func readLoop(conn *websocket.Conn, frames chan<- inbound, done chan<- error, quit <-chan struct{}) {
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			done <- err
			close(done)
			return
		}
		typ, decode, err := protocol.DecodeFrame(payload, kind == websocket.BinaryMessage)
		if err != nil {
			continue
		}
		select {
		case frames <- inbound{typ: typ, decode: decode, at: time.Now()}:
		case <-quit:
			return
		}
	}
}

func dialWithRetry(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	if !strings.HasPrefix(wsURL, "ws://") && !strings.HasPrefix(wsURL, "wss://") {
		return nil, fmt.Errorf("invalid ws url: %s", wsURL)
	}
	var lastErr error
	for attempt := 0; attempt < 12; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return nil, lastErr
}
