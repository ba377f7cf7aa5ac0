package server

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/collab"
	"collab-backend/internal/config"
	"collab-backend/internal/handler"
)

// Server Fiber 서버 래퍼
type Server struct {
	app              *fiber.App
	cfg              *config.Config
	healthHandler    *handler.HealthHandler
	sessionHandler   *handler.SessionHandler
	sessionWSHandler *handler.SessionWSHandler
	onShutdown       []func()
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, coord *collab.Coordinator, health *handler.HealthHandler) *Server {
	app := fiber.New(fiber.Config{
		AppName:       "Collab Session Backend",
		ServerHeader:  "Fiber",
		StrictRouting: false,
		CaseSensitive: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		BodyLimit:     1 * 1024 * 1024, // 1MB
	})

	return &Server{
		app:              app,
		cfg:              cfg,
		healthHandler:    health,
		sessionHandler:   handler.NewSessionHandler(coord),
		sessionWSHandler: handler.NewSessionWSHandler(coord, cfg.WebSocket),
	}
}

// App exposes the Fiber app (tests)
func (s *Server) App() *fiber.App {
	return s.app
}

// OnShutdown registers cleanup run after Fiber stops, in order.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (세션 생성 남용 방지)
	createLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	s.sessionHandler.Register(s.app.Group("/api/sessions"), createLimiter)
	s.sessionWSHandler.Register(s.app)
}

// Start 서버 시작 (Graceful Shutdown 지원)
// 시그널로 종료된 경우 등록된 정리 작업이 끝난 뒤 반환
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	listenDone := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-quit:
		case <-listenDone:
			return
		}
		log.Info().Str("module", "server").Msg("shutting down server")
		if err := s.Shutdown(); err != nil {
			log.Error().Err(err).Str("module", "server").Msg("server shutdown error")
		}
	}()

	log.Info().Str("module", "server").Str("port", s.cfg.Server.Port).Msg("collab backend starting")
	log.Info().Str("module", "server").Msgf("WebSocket endpoint: ws://localhost%s/ws/sessions/:id?userId=", s.cfg.Server.Port)

	err := s.app.Listen(s.cfg.Server.Port)
	close(listenDone)
	<-stopped
	return err
}

// Shutdown 서버 종료 후 등록된 정리 작업 실행
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
	for _, fn := range s.onShutdown {
		fn()
	}
	s.onShutdown = nil
	return err
}
