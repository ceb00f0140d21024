package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/codec"
	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/engine"
	"github.com/veilbook/darkpool/internal/events"
	"github.com/veilbook/darkpool/internal/registry"
	"github.com/veilbook/darkpool/internal/server"
	"github.com/veilbook/darkpool/internal/settlement"
	"github.com/veilbook/darkpool/internal/tradestore"
	"github.com/veilbook/darkpool/internal/vault"
	"github.com/veilbook/darkpool/internal/venue"
	"github.com/veilbook/darkpool/pkg/config"
	"github.com/veilbook/darkpool/pkg/logger"
)

// genesisEntry 本地账本的初始注资
type genesisEntry struct {
	Account common.Address  `json:"account"`
	TokenID string          `json:"token_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml）")
	genesisPath := flag.String("genesis", "", "本地账本初始余额文件（json，可选）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		panic(err)
	}
	log := logger.Get()

	// 本地结算账本；生产部署替换为链上结算适配器
	ledger := settlement.NewLedger()
	if *genesisPath != "" {
		raw, err := os.ReadFile(*genesisPath)
		if err != nil {
			log.WithError(err).Fatal("读取初始余额失败")
		}
		var entries []genesisEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			log.WithError(err).Fatal("解析初始余额失败")
		}
		for _, e := range entries {
			ledger.Deposit(e.Account, e.TokenID, e.Amount)
		}
		log.WithField("entries", len(entries)).Info("初始余额已注入")
	}

	// 金库账户地址从固定标签导出，和真实账户空间隔离
	vaultAccount := common.BytesToAddress(crypto.Keccak256([]byte("darkpool/vault"))[12:])
	v := vault.New(vaultAccount, cfg.Venue.Collateral, ledger, log)

	registryPath := ""
	if cfg.Venue.DataDir != "" {
		registryPath = filepath.Join(cfg.Venue.DataDir, "registry")
	}
	store, err := registry.OpenStore(registryPath)
	if err != nil {
		log.WithError(err).Fatal("打开承诺注册表失败")
	}
	defer store.Close()

	reg := registry.New(store, v, codec.DevVerifier{}, registry.Config{
		RevealDelay:  cfg.Venue.RevealDelay.D(),
		RevealWindow: cfg.Venue.RevealWindow.D(),
		RequireProof: cfg.Venue.RequireProof,
	}, time.Now, log)

	eng := engine.New(engine.Config{
		TickInterval:       cfg.Venue.TickInterval.D(),
		VWAPTrailingWindow: cfg.Venue.VWAPTrailingWindow.D(),
	}, v, ledger, log)

	trades, err := tradestore.Open(cfg.Venue.TradeDBPath)
	if err != nil {
		log.WithError(err).Fatal("打开成交库失败")
	}
	defer trades.Close()
	eng.OnTrade(func(t domain.Trade) {
		if err := trades.Save(t); err != nil {
			log.WithError(err).WithField("trade", t.ID).Error("成交落盘失败")
		}
	})

	bus := events.NewBus()
	core := venue.New(reg, eng, bus, time.Now, log)

	srv := &http.Server{
		Addr:    cfg.Venue.ListenAddr,
		Handler: server.New(core, trades, bus, log).Router(),
	}

	go func() {
		log.WithField("addr", cfg.Venue.ListenAddr).Info("场内服务启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP 服务异常退出")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("收到退出信号，优雅停机")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("停机超时")
	}
}
