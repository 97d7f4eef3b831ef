package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"property-analyzer/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL string
	JobStore    string
	JobQueue    string
	SQSQueueURL string

	WorkerConcurrency int
	PollMinInterval   time.Duration
	CreateRatePerMin  float64
	WorkDir           string

	LLM    LLMConfig
	OCR    OCRConfig
	Portal PortalConfig
}

// LLMConfig configures the hosted text-generation collaborator.
type LLMConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxInputChars int
	Timeout       time.Duration
}

// OCRConfig configures the OCR backends and the scorer.
type OCRConfig struct {
	Backends       []string
	Priority       []string
	BackendTimeout time.Duration
	Language       string
	DPI            int
	OCRmyPDFBin    string
	PdftoppmBin    string
	WeightWords    float64
	WeightClean    float64
	WeightLength   float64
}

// PortalConfig configures the county portal downloader.
type PortalConfig struct {
	BaseURL      string
	Username     string
	Password     string
	StorageState string
	Headless     bool
	Timeout      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	jobStore := normalizeChoice(getEnv("JOB_STORE", "memory"), "memory", "postgres")

	if jobStore == "postgres" && dbURL == "" {
		telemetry.Warn("config.invalid", map[string]any{
			"key":    "DATABASE_URL",
			"reason": "JOB_STORE=postgres requires DATABASE_URL",
		})
	}

	apiKey := getEnv("LLM_API_KEY", "")
	if apiKey == "" {
		apiKey = os.Getenv("HUGGINGFACE_API_KEY")
	}

	return Config{
		Port:            getEnv("PORT", "8001"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),

		ObjectStoreType: normalizeChoice(getEnv("OBJECT_STORE", "local"), "local", "s3"),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		DatabaseURL: dbURL,
		JobStore:    jobStore,
		JobQueue:    normalizeChoice(getEnv("JOB_QUEUE", "local"), "local", "sqs"),
		SQSQueueURL: getEnv("RA_SQS_QUEUE_URL", ""),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		PollMinInterval:   time.Duration(getEnvInt("POLL_MIN_INTERVAL_MS", 500)) * time.Millisecond,
		CreateRatePerMin:  getEnvFloat("CREATE_RATE_PER_MIN", 10),
		WorkDir:           getEnv("WORK_DIR", ""),

		LLM: LLMConfig{
			BaseURL:       getEnv("LLM_BASE_URL", "https://router.huggingface.co/v1"),
			APIKey:        apiKey,
			Model:         getEnv("LLM_MODEL", "openai/gpt-oss-20b:together"),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 10000),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.1),
			MaxInputChars: getEnvInt("LLM_MAX_INPUT_CHARS", 8000),
			Timeout:       time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		OCR: OCRConfig{
			Backends:       splitAndTrim(getEnv("OCR_BACKENDS", "ocrmypdf,tesseract,textlayer")),
			Priority:       splitAndTrim(getEnv("OCR_BACKEND_PRIORITY", "ocrmypdf,tesseract,textlayer")),
			BackendTimeout: time.Duration(getEnvInt("OCR_BACKEND_TIMEOUT_SECONDS", 300)) * time.Second,
			Language:       getEnv("OCR_LANGUAGE", "eng"),
			DPI:            getEnvInt("OCR_DPI", 180),
			OCRmyPDFBin:    getEnv("OCRMYPDF_BIN", "ocrmypdf"),
			PdftoppmBin:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			WeightWords:    getEnvFloat("OCR_WEIGHT_WORDS", 0.5),
			WeightClean:    getEnvFloat("OCR_WEIGHT_CLEAN", 0.3),
			WeightLength:   getEnvFloat("OCR_WEIGHT_LENGTH", 0.2),
		},
		Portal: PortalConfig{
			BaseURL:      getEnv("PORTAL_BASE_URL", "https://boulder.co.publicsearch.us"),
			Username:     getEnv("PORTAL_USERNAME", ""),
			Password:     getEnv("PORTAL_PASSWORD", ""),
			StorageState: getEnv("PORTAL_STORAGE_STATE", "boulder_storage_state.json"),
			Headless:     getEnvBool("PORTAL_HEADLESS", true),
			Timeout:      time.Duration(getEnvInt("PORTAL_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

// normalizeChoice lowercases raw and returns it when it is one of the allowed
// values, otherwise the first allowed value.
func normalizeChoice(raw string, allowed ...string) string {
	clean := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if clean == a {
			return a
		}
	}
	return allowed[0]
}

// IsDevLike reports whether env is a local development environment.
func IsDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
