package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"collab-backend/internal/archive"
	"collab-backend/internal/broadcast"
	"collab-backend/internal/cache"
	"collab-backend/internal/collab"
	"collab-backend/internal/config"
	"collab-backend/internal/database"
	"collab-backend/internal/handler"
	"collab-backend/internal/room"
	"collab-backend/internal/server"
	"collab-backend/internal/session"
	"collab-backend/internal/store"
)

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

func main() {
	// 설정 로드
	cfg := config.Load()
	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		rdb      *cache.RedisClient
		sessions store.SessionStore
		records  room.RecordStore
	)
	switch cfg.Store.Backend {
	case "memory":
		log.Warn().Str("module", "main").Msg("using in-memory store, state is lost on restart and not shared between nodes")
		sessions = store.NewMemoryStore()
		records = room.NewMemoryRecordStore()
	default:
		var err error
		rdb, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("module", "main").Str("addr", cfg.Redis.Addr).Msg("redis connection failed")
		}
		sessions = store.NewRedisStore(rdb, cfg.Session.TTL)
		records = room.NewRedisRecordStore(rdb, cfg.Session.TTL)
	}

	// 브로드캐스트 허브 (+ 멀티 노드 릴레이)
	hub := broadcast.NewHub(cfg.Broadcast.QueueSize)
	if rdb != nil && cfg.Broadcast.Relay {
		relay := broadcast.NewRedisRelay(rdb, hub)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("broadcast relay stopped")
			}
		}()
	}

	mgr := session.NewManager(sessions, cfg.Session)
	rooms := room.NewCoordinator(
		room.NewLiveKitMedia(cfg.LiveKit),
		room.NewLiveKitMinter(cfg.LiveKit),
		records,
		mgr,
		cfg.LiveKit,
	)

	// 세션 아카이브 (선택적)
	var (
		db   *gorm.DB
		opts []collab.Option
	)
	if cfg.Database.Enabled() {
		var err error
		db, err = database.Connect(cfg.Database, &archive.Record{})
		if err != nil {
			log.Fatal().Err(err).Str("module", "main").Msg("database connection failed")
		}
		opts = append(opts, collab.WithArchiver(archive.NewRepository(db)))
	} else {
		log.Info().Str("module", "main").Msg("database not configured, session archive disabled")
	}

	coord := collab.NewCoordinator(mgr, rooms, hub, hub, cfg.Session, opts...)

	var redisCheck handler.Pinger
	if rdb != nil {
		redisCheck = rdb
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, coord, handler.NewHealthHandler(redisCheck, db))
	srv.SetupMiddleware()
	srv.SetupRoutes()

	srv.OnShutdown(cancel)
	srv.OnShutdown(hub.Close)
	srv.OnShutdown(func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = database.Close(db)
	})

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("server failed to start")
	}
}
