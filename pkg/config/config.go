package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/veilbook/darkpool/pkg/logger"
)

// VenueConfig 场内参数
type VenueConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`          // HTTP 监听地址
	RevealDelay        Duration `yaml:"reveal_delay"`         // 承诺到可揭示的强制延迟
	RevealWindow       Duration `yaml:"reveal_window"`        // 延迟之后允许揭示的窗口
	TickInterval       Duration `yaml:"tick_interval"`        // VWAP/TWAP 切片窗口
	VWAPTrailingWindow Duration `yaml:"vwap_trailing_window"` // VWAP 参考成交量窗口
	Collateral         string   `yaml:"collateral"`           // 托管抵押币种
	DataDir            string   `yaml:"data_dir"`             // badger 注册表目录（空 = 内存）
	TradeDBPath        string   `yaml:"trade_db_path"`        // sqlite 成交库路径
	RequireProof       bool     `yaml:"require_proof"`        // 揭示是否强制携带证明
}

// RelayerConfig 自动中继参数
type RelayerConfig struct {
	VenueURL     string   `yaml:"venue_url"`     // 场内 HTTP 地址
	VenueWSURL   string   `yaml:"venue_ws_url"`  // 事件流 websocket 地址
	PollInterval Duration `yaml:"poll_interval"` // 调度器检查间隔
	PayloadsFile string   `yaml:"payloads_file"` // 托管揭示载荷文件（JSON）
}

// Config 顶层配置
type Config struct {
	Venue   VenueConfig   `yaml:"venue"`
	Relayer RelayerConfig `yaml:"relayer"`
	Log     logger.Config `yaml:"log"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Venue: VenueConfig{
			ListenAddr:         ":8480",
			RevealDelay:        Duration(time.Hour),
			RevealWindow:       Duration(24 * time.Hour),
			TickInterval:       Duration(time.Minute),
			VWAPTrailingWindow: Duration(15 * time.Minute),
			Collateral:         "USDC",
			TradeDBPath:        "data/trades.db",
		},
		Relayer: RelayerConfig{
			VenueURL:     "http://127.0.0.1:8480",
			VenueWSURL:   "ws://127.0.0.1:8480/ws",
			PollInterval: Duration(5 * time.Second),
		},
		Log: logger.Config{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Load 加载配置：默认值 <- yaml 文件 <- 环境变量（.env 先行载入）。
// path 为空时只用默认值和环境变量。
func Load(path string) (Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv 环境变量覆盖（部署时免改文件）
func applyEnv(cfg *Config) {
	if v := os.Getenv("DARKPOOL_LISTEN_ADDR"); v != "" {
		cfg.Venue.ListenAddr = v
	}
	if v := os.Getenv("DARKPOOL_REVEAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Venue.RevealDelay = Duration(d)
		}
	}
	if v := os.Getenv("DARKPOOL_REVEAL_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Venue.RevealWindow = Duration(d)
		}
	}
	if v := os.Getenv("DARKPOOL_DATA_DIR"); v != "" {
		cfg.Venue.DataDir = v
	}
	if v := os.Getenv("DARKPOOL_TRADE_DB"); v != "" {
		cfg.Venue.TradeDBPath = v
	}
	if v := os.Getenv("DARKPOOL_REQUIRE_PROOF"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Venue.RequireProof = b
		}
	}
	if v := os.Getenv("DARKPOOL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DARKPOOL_VENUE_URL"); v != "" {
		cfg.Relayer.VenueURL = v
	}
	if v := os.Getenv("DARKPOOL_VENUE_WS_URL"); v != "" {
		cfg.Relayer.VenueWSURL = v
	}
}
