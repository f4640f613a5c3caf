// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	RequireHTTPS bool

	// Database
	DatabaseURL string

	// Auth (C9)
	JWKSURL         string // OAuth 2.1 JWKS endpoint; enables JWT auth mode when set
	JWTAudience     string
	StaticAPIKey    string // Bearer API key, used when JWKSURL is unset
	AllowNoAPIKey   bool
	EncryptionKey   []byte // 32-byte key for AES-256-GCM, credential-at-rest encryption

	// CORS
	CORSOrigins []string

	// Rate limiting
	GlobalRateLimitPerMinute int
	MaxPayloadBytes          int64

	// LLM Gateway (C3)
	ServiceAnthropicKey  string
	ServiceOpenAIKey     string
	ServiceOpenRouterKey string
	ModelCatalogTTL      time.Duration
	VisionModelAllowlist []string

	// Job Engine (C5)
	WorkerPollInterval        time.Duration
	WorkerMaxPollInterval     time.Duration
	WorkerConcurrency         int
	WorkerShutdownGracePeriod time.Duration
	LeaseTimeout              time.Duration
	IdempotencyTTL            time.Duration

	// Research Orchestrator (C6)
	OrchestratorParallelism int // semaphore width P
	EnsembleSize            int
	MaxIterations           int
	MinMaxTokens            int

	// Hybrid Index (C4)
	BM25K1              float64
	BM25B               float64
	FusionWeightBM25    float64
	FusionWeightVector  float64
	VectorDimension     int
	IndexMaxDocBodyLen  int
	RerankEnabled       bool
	RerankModel         string

	// Embedding cache (optional redis)
	RedisURL string

	// Webhook signing (outbound job notifications)
	WebhookSigningSecret string

	// Idle shutdown (scale-to-zero)
	IdleTimeout time.Duration

	// MCP Core (C7) tool exposure mode
	ServerMode string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnvInt("PORT", 8080),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		RequireHTTPS: getEnvBool("REQUIRE_HTTPS", false),

		DatabaseURL: getEnv("DATABASE_URL", "file:broker.db?_journal=WAL&_timeout=5000"),

		JWKSURL:       getEnv("AUTH_JWKS_URL", ""),
		JWTAudience:   getEnv("AUTH_JWT_AUDIENCE", ""),
		StaticAPIKey:  getEnv("AUTH_API_KEY", ""),
		AllowNoAPIKey: getEnvBool("ALLOW_NO_API_KEY", false),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),

		GlobalRateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		MaxPayloadBytes:          int64(getEnvInt("MAX_PAYLOAD_BYTES", 10*1024*1024)),

		ServiceAnthropicKey:  getEnv("SERVICE_ANTHROPIC_KEY", ""),
		ServiceOpenAIKey:     getEnv("SERVICE_OPENAI_KEY", ""),
		ServiceOpenRouterKey: getEnv("SERVICE_OPENROUTER_KEY", ""),
		ModelCatalogTTL:      getEnvDuration("MODEL_CATALOG_TTL", 10*time.Minute),
		VisionModelAllowlist: getEnvSlice("VISION_MODEL_ALLOWLIST", []string{"anthropic/claude-3.5-sonnet", "openai/gpt-4o"}),

		WorkerPollInterval:        getEnvDuration("WORKER_POLL_INTERVAL", 1*time.Second),
		WorkerMaxPollInterval:     getEnvDuration("WORKER_MAX_POLL_INTERVAL", 30*time.Second),
		WorkerConcurrency:         getEnvInt("WORKER_CONCURRENCY", 3),
		WorkerShutdownGracePeriod: getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 5*time.Minute),
		LeaseTimeout:              getEnvDuration("JOB_LEASE_TIMEOUT", 2*time.Minute),
		IdempotencyTTL:            getEnvDuration("JOB_IDEMPOTENCY_TTL", 24*time.Hour),

		OrchestratorParallelism: getEnvInt("ORCHESTRATOR_PARALLELISM", 4),
		EnsembleSize:            getEnvInt("ORCHESTRATOR_ENSEMBLE_SIZE", 2),
		MaxIterations:           getEnvInt("ORCHESTRATOR_MAX_ITERATIONS", 2),
		MinMaxTokens:            getEnvInt("ORCHESTRATOR_MIN_MAX_TOKENS", 512),

		BM25K1:             getEnvFloat("INDEX_BM25_K1", 1.2),
		BM25B:              getEnvFloat("INDEX_BM25_B", 0.75),
		FusionWeightBM25:   getEnvFloat("INDEX_FUSION_WEIGHT_BM25", 0.5),
		FusionWeightVector: getEnvFloat("INDEX_FUSION_WEIGHT_VECTOR", 0.5),
		VectorDimension:    getEnvInt("INDEX_VECTOR_DIMENSION", 256),
		IndexMaxDocBodyLen: getEnvInt("INDEX_MAX_DOC_BODY_LEN", 20000),
		RerankEnabled:      getEnvBool("INDEX_RERANK_ENABLED", false),
		RerankModel:        getEnv("INDEX_RERANK_MODEL", "claude-3-5-haiku-20241022"),

		RedisURL: getEnv("REDIS_URL", ""),

		WebhookSigningSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		ServerMode: strings.ToUpper(getEnv("SERVER_MODE", "ALL")),
	}

	if cfg.FusionWeightBM25+cfg.FusionWeightVector <= 0 {
		return nil, fmt.Errorf("fusion weights must sum to a positive value")
	}

	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		seed := cfg.StaticAPIKey
		if seed == "" {
			seed = generateRandomSecret(32)
		}
		cfg.EncryptionKey = deriveEncryptionKey(seed)
	}

	return cfg, nil
}

// AuthMode describes which of the four authentication modes (§4.9)
// is active, resolved once at startup.
type AuthMode string

const (
	AuthModeJWKS     AuthMode = "jwks"
	AuthModeAPIKey   AuthMode = "api_key"
	AuthModeOpen     AuthMode = "open"
	AuthModeDisabled AuthMode = "disabled"
)

// ResolveAuthMode implements the ordered resolution in spec §4.9.
func (c *Config) ResolveAuthMode() AuthMode {
	switch {
	case c.JWKSURL != "":
		return AuthModeJWKS
	case c.StaticAPIKey != "":
		return AuthModeAPIKey
	case c.AllowNoAPIKey:
		return AuthModeOpen
	default:
		return AuthModeDisabled
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "broker-secret-change-me-" + base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("deepresearch-mcp-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
