package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"arenasync/config"
	"arenasync/server"
)

// arenasync 入口：加载配置，启动 HTTP + WebSocket 服务与房间管理器
func main() {
	var (
		cfgPath string
		addr    string
		debug   bool
	)
	flag.StringVar(&cfgPath, "config", "", "optional config file (yaml/json/toml)")
	flag.StringVar(&addr, "addr", "", "listen address override, e.g. :8080")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Server.LogFile, debug); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rm, err := server.NewRoomManager(ctx, cfg)
	if err != nil {
		server.Log.Fatalf("room manager: %v", err)
	}
	// 先预创建一个默认房间，机器人立即开始活动
	if _, err := rm.GetOrCreateRoom(server.DefaultRoom); err != nil {
		server.Log.Fatalf("default room: %v", err)
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: server.NewRouter(rm)}
	go func() {
		server.Log.Infof("arenasync listening on %s (tick %d Hz, broadcast %d Hz)", cfg.Server.Addr, cfg.Sim.TickHz, cfg.Sim.BroadcastHz)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Errorf("listen: %v", err)
			stop()
		}
	}()

	// 优雅退出（Ctrl+C）
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Warnf("http shutdown: %v", err)
	}
	if err := rm.Shutdown(); err != nil {
		server.Log.Warnf("room shutdown: %v", err)
	}
}
