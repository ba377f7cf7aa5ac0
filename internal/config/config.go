package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
	Store     StoreConfig
	Session   SessionConfig
	LiveKit   LiveKitConfig
	Broadcast BroadcastConfig
	Database  DatabaseConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	SendBufferSize  int
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// LogConfig 로깅 설정
type LogConfig struct {
	Level  string
	Format string // json | console
}

// RedisConfig Redis 설정
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// StoreConfig selects the session record backend.
type StoreConfig struct {
	Backend string // redis | memory
}

// HostRemovalPolicy decides what happens to a session when its host is removed.
type HostRemovalPolicy string

const (
	HostRemovalKeep HostRemovalPolicy = "keep"
	HostRemovalEnd  HostRemovalPolicy = "end"
)

// SessionConfig session lifecycle settings
type SessionConfig struct {
	MaxAttempts        int
	OpTimeout          time.Duration
	TTL                time.Duration
	MaxParticipants    int
	HostRemoval        HostRemovalPolicy
	DeleteRoomAttempts int
	RetryBackoff       time.Duration
}

// LiveKitConfig LiveKit 설정
type LiveKitConfig struct {
	Host            string
	APIKey          string
	APISecret       string
	EmptyTimeout    time.Duration
	MaxParticipants int
	TokenTTL        time.Duration
	CallTimeout     time.Duration
}

// BroadcastConfig event fan-out settings
type BroadcastConfig struct {
	QueueSize int
	Relay     bool
}

// DatabaseConfig 데이터베이스 설정 (Host가 비어 있으면 아카이브 비활성화)
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// Enabled reports whether an archive database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Info().Str("module", "config").Msg("no .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			SendBufferSize:  getInt("WS_SEND_BUFFER", 256),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", ""),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "redis"),
		},
		Session: SessionConfig{
			MaxAttempts:        getInt("SESSION_MAX_ATTEMPTS", 4),
			OpTimeout:          getDuration("SESSION_OP_TIMEOUT", 5*time.Second),
			TTL:                getDuration("SESSION_TTL", 24*time.Hour),
			MaxParticipants:    getInt("SESSION_MAX_PARTICIPANTS", 20),
			HostRemoval:        HostRemovalPolicy(getEnv("SESSION_HOST_REMOVAL", string(HostRemovalKeep))),
			DeleteRoomAttempts: getInt("SESSION_DELETE_ROOM_ATTEMPTS", 3),
			RetryBackoff:       getDuration("SESSION_RETRY_BACKOFF", 200*time.Millisecond),
		},
		LiveKit: LiveKitConfig{
			Host:            getEnv("LIVEKIT_HOST", "ws://localhost:7880"),
			APIKey:          getEnv("LIVEKIT_API_KEY", "devkey"),
			APISecret:       getEnv("LIVEKIT_API_SECRET", "secret"),
			EmptyTimeout:    getDuration("LIVEKIT_EMPTY_TIMEOUT", 30*time.Minute),
			MaxParticipants: getInt("LIVEKIT_MAX_PARTICIPANTS", 20),
			TokenTTL:        getDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),
			CallTimeout:     getDuration("LIVEKIT_CALL_TIMEOUT", 10*time.Second),
		},
		Broadcast: BroadcastConfig{
			QueueSize: getInt("BROADCAST_QUEUE_SIZE", 128),
			Relay:     getBool("BROADCAST_RELAY", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
	}

	if cfg.Session.HostRemoval != HostRemovalKeep && cfg.Session.HostRemoval != HostRemovalEnd {
		log.Warn().Str("module", "config").Str("value", string(cfg.Session.HostRemoval)).
			Msg("unknown SESSION_HOST_REMOVAL, falling back to keep")
		cfg.Session.HostRemoval = HostRemovalKeep
	}
	if cfg.LiveKit.APIKey == "devkey" || cfg.LiveKit.APISecret == "secret" {
		log.Warn().Str("module", "config").Msg("LiveKit is using development credentials")
	}

	return cfg
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
