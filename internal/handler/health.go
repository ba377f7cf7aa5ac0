package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collab-backend/internal/database"
)

// Pinger is anything with a health check, e.g. the Redis client.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	redis Pinger
	db    *gorm.DB
}

// NewHealthHandler HealthHandler 생성. nil 의존성은 not_configured 로 보고
func NewHealthHandler(redis Pinger, db *gorm.DB) *HealthHandler {
	return &HealthHandler{redis: redis, db: db}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

func (h *HealthHandler) checkRedis(ctx context.Context) ComponentCheck {
	if h.redis == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := h.redis.Health(ctx); err != nil {
		return ComponentCheck{Status: "unhealthy", Error: "redis ping failed"}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ComponentCheck {
	if h.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := database.Ping(ctx, h.db); err != nil {
		return ComponentCheck{Status: "unhealthy", Error: "database ping failed"}
	}
	return ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
}

// Check 전체 상태 확인 (Redis + DB)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks: map[string]ComponentCheck{
			"redis":    h.checkRedis(ctx),
			"database": h.checkDatabase(ctx),
		},
	}
	for _, check := range response.Checks {
		if check.Status == "unhealthy" {
			response.Status = "unhealthy"
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (Redis 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if h.checkRedis(ctx).Status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
