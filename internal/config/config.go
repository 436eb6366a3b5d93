package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/shone114/alternate-history/internal/gateway"
)

// MemoryDatabaseURL selects the in-process store.
const MemoryDatabaseURL = "memory://"

type Config struct {
	DatabaseURL string `validate:"required"` // ALTHIST_DATABASE_URL (required; "memory://" = in-memory store)
	GRPCAddr    string // ALTHIST_GRPC_ADDR (default ":9090"; empty = no gRPC listener)
	HTTPAddr    string `validate:"required"` // ALTHIST_HTTP_ADDR (default ":8080")
	NATSURL     string // ALTHIST_NATS_URL (optional, empty = no events)
	AdminToken  string // ALTHIST_ADMIN_TOKEN (serve requires it unless --insecure-admin)
	LogFormat   string `validate:"oneof=json console"` // ALTHIST_LOG_FORMAT (default "json")

	// Universe
	UniverseID    string `validate:"required"` // ALTHIST_UNIVERSE_ID
	UniverseTitle string // ALTHIST_UNIVERSE_TITLE
	SeedPath      string // ALTHIST_SEED_PATH (.json, .yaml or .yml)
	PromptDir     string `validate:"required"` // ALTHIST_PROMPT_DIR

	// Pipeline
	RecentLimit       int           `validate:"min=1"` // ALTHIST_RECENT_LIMIT (default 15)
	SubtopicAttempts  int           `validate:"min=1"` // ALTHIST_SUBTOPIC_ATTEMPTS (default 3)
	ProposalAAttempts int           `validate:"min=1"` // ALTHIST_PROPOSAL_A_ATTEMPTS (default 3)
	ProposalBAttempts int           `validate:"min=1"` // ALTHIST_PROPOSAL_B_ATTEMPTS (default 1)
	RetryDelay        time.Duration `validate:"min=0"` // ALTHIST_RETRY_DELAY (default 2s)
	ParallelProposals bool          // ALTHIST_PARALLEL_PROPOSALS (default true)
	ModelTimeout      time.Duration `validate:"gt=0"`  // ALTHIST_MODEL_TIMEOUT (default 5m)
	CycleTimeout      time.Duration `validate:"min=0"` // ALTHIST_CYCLE_TIMEOUT (default 0 = none)

	// Models
	ModelsFile       string                         // ALTHIST_MODELS_FILE (optional TOML role overrides)
	Routes           map[gateway.Role]gateway.Route `validate:"required"`
	OpenRouterAPIKey string                         // OPENROUTER_API_KEY (alias "OpenRouter", "AI_ML")
	GroqAPIKey       string                         // GROQ_API_KEY (alias "Groq")
	GeminiAPIKey     string                         // GEMINI_API_KEY (alias "Gemini_Key")

	// Scheduler
	SchedulerEnabled bool   // ALTHIST_SCHEDULER_ENABLED (default false)
	ScheduleTime     string `validate:"datetime=15:04"` // ALTHIST_SCHEDULE_TIME (default "13:15")
	Timezone         string `validate:"timezone"`       // ALTHIST_TIMEZONE (default "Asia/Kolkata")

	// Export settings
	ExportInterval   time.Duration `validate:"min=0"` // ALTHIST_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // ALTHIST_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // ALTHIST_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // ALTHIST_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // ALTHIST_EXPORT_S3_KEY (default "althist/<universe>.jsonl")
	ExportFile       string        // ALTHIST_EXPORT_FILE (enables file export when set)
}

// UsesMemoryStore reports whether the in-memory store was requested.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("ALTHIST_DATABASE_URL"),
		GRPCAddr:         envOrDefault("ALTHIST_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("ALTHIST_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("ALTHIST_NATS_URL"),
		AdminToken:       os.Getenv("ALTHIST_ADMIN_TOKEN"),
		LogFormat:        envOrDefault("ALTHIST_LOG_FORMAT", "json"),
		UniverseID:       envOrDefault("ALTHIST_UNIVERSE_ID", "cold_war_no_moon_landing"),
		UniverseTitle:    envOrDefault("ALTHIST_UNIVERSE_TITLE", "Cold War Without The Apollo 11 Moon Landing"),
		SeedPath:         envOrDefault("ALTHIST_SEED_PATH", "universe/universe_seed.json"),
		PromptDir:        envOrDefault("ALTHIST_PROMPT_DIR", "universe"),
		ModelsFile:       os.Getenv("ALTHIST_MODELS_FILE"),
		OpenRouterAPIKey: firstEnv("OPENROUTER_API_KEY", "OpenRouter", "AI_ML"),
		GroqAPIKey:       firstEnv("GROQ_API_KEY", "Groq"),
		GeminiAPIKey:     firstEnv("GEMINI_API_KEY", "Gemini_Key"),
		ScheduleTime:     envOrDefault("ALTHIST_SCHEDULE_TIME", "13:15"),
		Timezone:         envOrDefault("ALTHIST_TIMEZONE", "Asia/Kolkata"),
		ExportS3Bucket:   os.Getenv("ALTHIST_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("ALTHIST_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("ALTHIST_EXPORT_S3_REGION", "us-east-1"),
		ExportFile:       os.Getenv("ALTHIST_EXPORT_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("ALTHIST_DATABASE_URL is required")
	}
	c.ExportS3Key = envOrDefault("ALTHIST_EXPORT_S3_KEY", "althist/"+c.UniverseID+".jsonl")

	var err error
	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"ALTHIST_RECENT_LIMIT", 15, &c.RecentLimit},
		{"ALTHIST_SUBTOPIC_ATTEMPTS", 3, &c.SubtopicAttempts},
		{"ALTHIST_PROPOSAL_A_ATTEMPTS", 3, &c.ProposalAAttempts},
		{"ALTHIST_PROPOSAL_B_ATTEMPTS", 1, &c.ProposalBAttempts},
	}
	for _, f := range ints {
		if *f.dest, err = envInt(f.key, f.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"ALTHIST_RETRY_DELAY", "2s", &c.RetryDelay},
		{"ALTHIST_MODEL_TIMEOUT", "5m", &c.ModelTimeout},
		{"ALTHIST_CYCLE_TIMEOUT", "0", &c.CycleTimeout},
		{"ALTHIST_EXPORT_INTERVAL", "0", &c.ExportInterval},
	}
	for _, f := range durations {
		if *f.dest, err = envDuration(f.key, f.def); err != nil {
			return nil, err
		}
	}

	if c.ParallelProposals, err = envBool("ALTHIST_PARALLEL_PROPOSALS", true); err != nil {
		return nil, err
	}
	if c.SchedulerEnabled, err = envBool("ALTHIST_SCHEDULER_ENABLED", false); err != nil {
		return nil, err
	}

	c.Routes = gateway.DefaultRoutes()
	if c.ModelsFile != "" {
		if err := c.loadModelsFile(c.ModelsFile); err != nil {
			return nil, err
		}
	}

	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// modelsFile is the TOML layout of ALTHIST_MODELS_FILE:
//
//	[roles.arbiter]
//	provider = "groq"
//	model = "llama-3.3-70b-versatile"
//	temperature = 0.7
type modelsFile struct {
	Roles map[string]gateway.Route `toml:"roles"`
}

// loadModelsFile overlays per-role routes from a TOML file. Roles not named
// in the file keep their defaults.
func (c *Config) loadModelsFile(path string) error {
	var mf modelsFile
	if _, err := toml.DecodeFile(path, &mf); err != nil {
		return fmt.Errorf("ALTHIST_MODELS_FILE: %w", err)
	}
	known := make(map[gateway.Role]bool)
	for _, r := range gateway.Roles() {
		known[r] = true
	}
	for name, rt := range mf.Roles {
		role := gateway.Role(name)
		if !known[role] {
			return fmt.Errorf("ALTHIST_MODELS_FILE: unknown role %q", name)
		}
		cur := c.Routes[role]
		if rt.Provider != "" {
			cur.Provider = rt.Provider
		}
		if rt.Model != "" {
			cur.Model = rt.Model
		}
		if rt.Temperature != nil {
			cur.Temperature = rt.Temperature
		}
		c.Routes[role] = cur
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation at once.
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must match layout %s", fe.Field(), fe.Param())
	case "timezone":
		return fmt.Sprintf("%s must be an IANA time zone", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
