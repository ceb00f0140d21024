package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/veilbook/darkpool/internal/relayer"
	"github.com/veilbook/darkpool/pkg/config"
	"github.com/veilbook/darkpool/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		panic(err)
	}
	log := logger.Get()

	r, err := relayer.New(relayer.Config{
		VenueURL:     cfg.Relayer.VenueURL,
		VenueWSURL:   cfg.Relayer.VenueWSURL,
		PollInterval: cfg.Relayer.PollInterval.D(),
		PayloadsFile: cfg.Relayer.PayloadsFile,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("初始化中继失败")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("收到退出信号")
		cancel()
	}()

	if err := r.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("中继异常退出")
	}
}
