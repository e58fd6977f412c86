package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/giga89/memento-legacy/internal/config"
	"github.com/giga89/memento-legacy/internal/db"
	clog "github.com/giga89/memento-legacy/internal/log"
	"github.com/giga89/memento-legacy/internal/server"
	"github.com/giga89/memento-legacy/internal/service"
	"github.com/giga89/memento-legacy/internal/sweep"
	"github.com/giga89/memento-legacy/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库、
	// 启动后台扫描任务并拉起 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	dispatcher := service.NewDispatchService(gdb, cfg)
	sweeper := sweep.New(gdb, dispatcher, hub, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	go sweeper.Run(ctx)

	r := server.SetupRouter(cfg, gdb, hub, dispatcher)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
