package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all runtime configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Server   Server
	Pipeline Pipeline
	LLM      LLM
	Redis    RedisConfig
	Kafka    Kafka
	Postgres Postgres
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Pipeline captures per-run defaults for the screening stages. Individual
// submissions may override MinYears.
type Pipeline struct {
	MinYears            float64
	SkillPassThreshold  float64
	TrustPassThreshold  float64
	EvidenceTopK        int
	MaxQuestions        int
	AnswerIdleTimeout   time.Duration
	CollaboratorTimeout time.Duration
}

// LLM captures the completion backend and its retry behavior. The server
// refuses to start without a URL; screening cannot run without the model.
type LLM struct {
	URL            string
	MaxRetries     int
	InitialBackoff time.Duration
	RequestTimeout time.Duration
}

// RedisConfig captures Redis connection settings. Empty URL means Redis is
// not configured and in-memory stores are used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit fan-out settings. Empty brokers disables publishing.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Postgres captures the audit store DSN. Empty means in-memory only.
type Postgres struct {
	DSN string
}

// SigningSecret is the single issuer secret shared by the credential registry
// and the packet assembler. A default exists for development only.
func SigningSecret() string {
	if s := os.Getenv("VELOS_SIGNING_SECRET"); s != "" {
		return s
	}
	return "dev-secret-key-change-in-production"
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envString("VELOS_ADDR", ":8080"),
		},
		Pipeline: Pipeline{
			MinYears:            envFloat("VELOS_MIN_YEARS", 2.0),
			SkillPassThreshold:  envFloat("VELOS_SKILL_THRESHOLD", 60),
			TrustPassThreshold:  envFloat("VELOS_TRUST_THRESHOLD", 70),
			EvidenceTopK:        envInt("VELOS_EVIDENCE_TOP_K", 3),
			MaxQuestions:        envInt("VELOS_MAX_QUESTIONS", 3),
			AnswerIdleTimeout:   envDuration("VELOS_ANSWER_IDLE_TIMEOUT", 10*time.Minute),
			CollaboratorTimeout: envDuration("VELOS_COLLABORATOR_TIMEOUT", 30*time.Second),
		},
		LLM: LLM{
			URL:            os.Getenv("VELOS_LLM_URL"),
			MaxRetries:     envInt("VELOS_LLM_MAX_RETRIES", 3),
			InitialBackoff: envDuration("VELOS_LLM_INITIAL_BACKOFF", 500*time.Millisecond),
			RequestTimeout: envDuration("VELOS_LLM_REQUEST_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("VELOS_REDIS_URL"),
			PoolSize:     envInt("VELOS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VELOS_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("VELOS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VELOS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VELOS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    envList("VELOS_KAFKA_BROKERS"),
			AuditTopic: envString("VELOS_KAFKA_AUDIT_TOPIC", "velos.audit.events"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("VELOS_POSTGRES_DSN"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
