// Package config 加载服务端配置：.env -> 可选配置文件 -> ARENA_ 前缀环境变量，
// 未设置的项使用默认值。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"arenasync/ai"
	"arenasync/game"
	"arenasync/gate"
)

// EnvPrefix 环境变量前缀，如 ARENA_SIM_TICK_HZ
const EnvPrefix = "ARENA"

type Server struct {
	Addr    string `mapstructure:"addr"`
	LogFile string `mapstructure:"log_file"`
	Codec   string `mapstructure:"codec"` // 默认下行编码：json | msgpack
}

type Sim struct {
	TickHz        int           `mapstructure:"tick_hz"`
	BroadcastHz   int           `mapstructure:"broadcast_hz"`
	KeyframeEvery int           `mapstructure:"keyframe_every"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	WorldWidth    float64       `mapstructure:"world_width"`
	WorldHeight   float64       `mapstructure:"world_height"`
	BaseSpeed     float64       `mapstructure:"base_speed"`
	Radius        float64       `mapstructure:"radius"`
	Bots          int           `mapstructure:"bots"`
	Items         int           `mapstructure:"items"`
	ItemRespawn   time.Duration `mapstructure:"item_respawn"`
	TagFreeze     time.Duration `mapstructure:"tag_freeze"`
	CloakDuration time.Duration `mapstructure:"cloak_duration"`
}

type Gate struct {
	SoftLimit      int           `mapstructure:"soft_limit"`
	HardLimit      int           `mapstructure:"hard_limit"`
	Window         time.Duration `mapstructure:"window"`
	ReplayCapacity int           `mapstructure:"replay_capacity"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

type AI struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config 全部配置
type Config struct {
	Server Server `mapstructure:"server"`
	Sim    Sim    `mapstructure:"sim"`
	Gate   Gate   `mapstructure:"gate"`
	AI     AI     `mapstructure:"ai"`
}

// Default 与各包默认参数一致的配置
func Default() Config {
	g := gate.DefaultConfig()
	return Config{
		Server: Server{Addr: ":8080", LogFile: "app.log", Codec: "json"},
		Sim: Sim{
			TickHz:        game.SimTickHz,
			BroadcastHz:   game.BroadcastHz,
			KeyframeEvery: 30,
			IdleTimeout:   30 * time.Second,
			WorldWidth:    game.WorldWidth,
			WorldHeight:   game.WorldHeight,
			BaseSpeed:     game.BaseSpeed,
			Radius:        game.EntityRadius,
			Bots:          4,
			Items:         3,
			ItemRespawn:   5 * time.Second,
			TagFreeze:     time.Second,
			CloakDuration: 4 * time.Second,
		},
		Gate: Gate{
			SoftLimit:      g.SoftLimit,
			HardLimit:      g.HardLimit,
			Window:         g.Window,
			ReplayCapacity: g.ReplayCapacity,
			BackoffBase:    g.BackoffBase,
			BackoffMax:     g.BackoffMax,
			StaleAfter:     g.StaleAfter,
		},
		AI: AI{Interval: ai.DefaultTuning().Interval},
	}
}

// Load 读取配置。path 为空时只使用默认值和环境变量；.env 不存在不算错误。
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults 逐项注册默认值，AutomaticEnv 只对已知 key 生效
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.log_file", d.Server.LogFile)
	v.SetDefault("server.codec", d.Server.Codec)

	v.SetDefault("sim.tick_hz", d.Sim.TickHz)
	v.SetDefault("sim.broadcast_hz", d.Sim.BroadcastHz)
	v.SetDefault("sim.keyframe_every", d.Sim.KeyframeEvery)
	v.SetDefault("sim.idle_timeout", d.Sim.IdleTimeout)
	v.SetDefault("sim.world_width", d.Sim.WorldWidth)
	v.SetDefault("sim.world_height", d.Sim.WorldHeight)
	v.SetDefault("sim.base_speed", d.Sim.BaseSpeed)
	v.SetDefault("sim.radius", d.Sim.Radius)
	v.SetDefault("sim.bots", d.Sim.Bots)
	v.SetDefault("sim.items", d.Sim.Items)
	v.SetDefault("sim.item_respawn", d.Sim.ItemRespawn)
	v.SetDefault("sim.tag_freeze", d.Sim.TagFreeze)
	v.SetDefault("sim.cloak_duration", d.Sim.CloakDuration)

	v.SetDefault("gate.soft_limit", d.Gate.SoftLimit)
	v.SetDefault("gate.hard_limit", d.Gate.HardLimit)
	v.SetDefault("gate.window", d.Gate.Window)
	v.SetDefault("gate.replay_capacity", d.Gate.ReplayCapacity)
	v.SetDefault("gate.backoff_base", d.Gate.BackoffBase)
	v.SetDefault("gate.backoff_max", d.Gate.BackoffMax)
	v.SetDefault("gate.stale_after", d.Gate.StaleAfter)

	v.SetDefault("ai.interval", d.AI.Interval)
}

// Validate 检查取值范围，返回所有问题
func (c Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}
	check(c.Sim.TickHz > 0, "sim.tick_hz must be positive, got %d", c.Sim.TickHz)
	check(c.Sim.BroadcastHz > 0, "sim.broadcast_hz must be positive, got %d", c.Sim.BroadcastHz)
	check(c.Sim.BroadcastHz <= c.Sim.TickHz, "sim.broadcast_hz (%d) exceeds sim.tick_hz (%d)", c.Sim.BroadcastHz, c.Sim.TickHz)
	check(c.Sim.KeyframeEvery > 0, "sim.keyframe_every must be positive")
	check(c.Sim.WorldWidth > 2*c.Sim.Radius && c.Sim.WorldHeight > 2*c.Sim.Radius, "world %.0fx%.0f too small for radius %.0f", c.Sim.WorldWidth, c.Sim.WorldHeight, c.Sim.Radius)
	check(c.Sim.BaseSpeed > 0, "sim.base_speed must be positive")
	check(c.Sim.Bots >= 0 && c.Sim.Items >= 0, "sim.bots and sim.items must not be negative")
	check(c.Gate.SoftLimit > 0, "gate.soft_limit must be positive")
	check(c.Gate.HardLimit >= c.Gate.SoftLimit, "gate.hard_limit (%d) below gate.soft_limit (%d)", c.Gate.HardLimit, c.Gate.SoftLimit)
	check(c.Gate.Window > 0, "gate.window must be positive")
	check(c.Gate.BackoffBase > 0 && c.Gate.BackoffMax >= c.Gate.BackoffBase, "gate backoff range invalid: %v..%v", c.Gate.BackoffBase, c.Gate.BackoffMax)
	check(c.Gate.StaleAfter > 0, "gate.stale_after must be positive")
	check(c.AI.Interval > 0, "ai.interval must be positive")
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GateConfig 转换为 gate 参数
func (c Config) GateConfig() gate.Config {
	return gate.Config{
		SoftLimit:      c.Gate.SoftLimit,
		HardLimit:      c.Gate.HardLimit,
		Window:         c.Gate.Window,
		ReplayCapacity: c.Gate.ReplayCapacity,
		BackoffBase:    c.Gate.BackoffBase,
		BackoffMax:     c.Gate.BackoffMax,
		StaleAfter:     c.Gate.StaleAfter,
	}
}

// AITuning AI 参数
func (c Config) AITuning() ai.Tuning {
	t := ai.DefaultTuning()
	t.Interval = c.AI.Interval
	return t
}
