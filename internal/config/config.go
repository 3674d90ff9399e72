package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrConfig = errors.New("invalid configuration")

const (
	MinChunkLines     = 20
	MaxChunkLines     = 40
	DefaultChunkLines = 30
)

type Config struct {
	Port           string
	Env            string
	APIKey         string
	ChatModel      string
	AuditModel     string
	EmbedModel     string
	Temperature    float32
	ChunkLines     int
	Workers        int
	RefineCap      int
	DiscoverTopK   int
	VectorDir      string
	VectorPGDSN    string
	LLMRPS         float64
	LLMBurst       int
	LLMRetries     int
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	MaxSessions    int
	ReportDir      string
	Offline        bool

	// AllowLocalRepos lets audits and Q&A use directories and file:// URLs
	// on this host. The CLI turns it on; the HTTP server keeps it off
	// unless GUARDIAN_ALLOW_LOCAL_REPOS is set.
	AllowLocalRepos bool

	Log            LogConfig
	Artifact       ArtifactConfig
}

type LogConfig struct {
	Level      string
	JSONFormat bool
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads .env (if present) and the process environment. It never fails
// on missing values; call Validate before doing expensive work.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), ":8000")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")

	cfg := &Config{
		Port:           port,
		Env:            env,
		APIKey:         firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
		ChatModel:      firstNonEmpty(os.Getenv("GUARDIAN_CHAT_MODEL"), "gemini-2.5-flash"),
		AuditModel:     firstNonEmpty(os.Getenv("GUARDIAN_AUDIT_MODEL"), os.Getenv("GUARDIAN_CHAT_MODEL"), "gemini-2.5-flash"),
		EmbedModel:     firstNonEmpty(os.Getenv("GUARDIAN_EMBED_MODEL"), "text-embedding-004"),
		Temperature:    float32(envFloat("GUARDIAN_TEMPERATURE", 0.1)),
		ChunkLines:     envInt("GUARDIAN_CHUNK_LINES", DefaultChunkLines),
		Workers:        envInt("GUARDIAN_WORKERS", 1),
		RefineCap:      envInt("GUARDIAN_REFINE_CAP", 10),
		DiscoverTopK:   envInt("GUARDIAN_DISCOVER_TOPK", 5),
		VectorDir:      firstNonEmpty(os.Getenv("GUARDIAN_VECTOR_DIR"), "legal_db"),
		VectorPGDSN:    strings.TrimSpace(os.Getenv("GUARDIAN_VECTOR_PG_DSN")),
		LLMRPS:         envFloat("LLM_RPS", 0),
		LLMBurst:       envInt("LLM_BURST", 1),
		LLMRetries:     envInt("LLM_RETRIES", 3),
		RequestTimeout: envDuration("GUARDIAN_REQUEST_TIMEOUT", 10*time.Minute),
		SessionTTL:     envDuration("GUARDIAN_SESSION_TTL", time.Hour),
		MaxSessions:    envInt("GUARDIAN_MAX_SESSIONS", 32),
		ReportDir:      strings.TrimSpace(os.Getenv("GUARDIAN_REPORT_DIR")),
		Offline:        envBool("GUARDIAN_OFFLINE", false),
		Log: LogConfig{
			Level:      firstNonEmpty(os.Getenv("GUARDIAN_LOG_LEVEL"), "INFO"),
			JSONFormat: envBool("GUARDIAN_LOG_JSON", false),
		},
		Artifact: loadArtifactConfig(env),
	}
	cfg.AllowLocalRepos = envBool("GUARDIAN_ALLOW_LOCAL_REPOS", false)
	return cfg, nil
}

// Validate fails fast on settings that would make a run pointless.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" && !c.Offline {
		errs = append(errs, errors.New("GEMINI_API_KEY (or GOOGLE_API_KEY) is not set"))
	}
	if c.ChunkLines < MinChunkLines || c.ChunkLines > MaxChunkLines {
		errs = append(errs, fmt.Errorf("chunk size %d outside [%d,%d]", c.ChunkLines, MinChunkLines, MaxChunkLines))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.RefineCap < 1 {
		errs = append(errs, fmt.Errorf("refine cap must be >= 1, got %d", c.RefineCap))
	}
	if c.DiscoverTopK < 1 {
		errs = append(errs, fmt.Errorf("discover top-k must be >= 1, got %d", c.DiscoverTopK))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// RequireFile checks that a user-supplied input file exists and is regular.
func RequireFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: document path is empty", ErrConfig)
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrConfig, path)
	}
	return nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "guardian-reports"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	return envBool("ARTIFACT_S3_USE_SSL", true)
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
