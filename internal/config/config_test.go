package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shone114/alternate-history/internal/gateway"
)

var allEnvVars = []string{
	"ALTHIST_DATABASE_URL", "ALTHIST_GRPC_ADDR", "ALTHIST_HTTP_ADDR", "ALTHIST_NATS_URL",
	"ALTHIST_ADMIN_TOKEN", "ALTHIST_LOG_FORMAT", "ALTHIST_UNIVERSE_ID", "ALTHIST_UNIVERSE_TITLE",
	"ALTHIST_SEED_PATH", "ALTHIST_PROMPT_DIR", "ALTHIST_MODELS_FILE", "ALTHIST_RECENT_LIMIT",
	"ALTHIST_SUBTOPIC_ATTEMPTS", "ALTHIST_PROPOSAL_A_ATTEMPTS", "ALTHIST_PROPOSAL_B_ATTEMPTS",
	"ALTHIST_RETRY_DELAY", "ALTHIST_PARALLEL_PROPOSALS", "ALTHIST_MODEL_TIMEOUT", "ALTHIST_CYCLE_TIMEOUT",
	"ALTHIST_SCHEDULER_ENABLED", "ALTHIST_SCHEDULE_TIME", "ALTHIST_TIMEZONE",
	"ALTHIST_EXPORT_INTERVAL", "ALTHIST_EXPORT_S3_BUCKET", "ALTHIST_EXPORT_S3_ENDPOINT",
	"ALTHIST_EXPORT_S3_REGION", "ALTHIST_EXPORT_S3_KEY", "ALTHIST_EXPORT_FILE",
	"OPENROUTER_API_KEY", "OpenRouter", "AI_ML", "GROQ_API_KEY", "Groq", "GEMINI_API_KEY", "Gemini_Key",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"ALTHIST_DATABASE_URL": "postgres://localhost/althist"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"ALTHIST_DATABASE_URL": "postgres://db:5432/althist",
				"ALTHIST_GRPC_ADDR":    ":5050",
				"ALTHIST_HTTP_ADDR":    ":3000",
				"ALTHIST_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name:    "BadInteger",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_RECENT_LIMIT": "lots"},
			wantErr: true,
		},
		{
			name:    "ZeroAttempts",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_SUBTOPIC_ATTEMPTS": "0"},
			wantErr: true,
		},
		{
			name:    "BadScheduleTime",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_SCHEDULE_TIME": "25:99"},
			wantErr: true,
		},
		{
			name:    "BadTimezone",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_TIMEZONE": "Mars/Olympus"},
			wantErr: true,
		},
		{
			name:    "BadLogFormat",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_LOG_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "BadBool",
			env:     map[string]string{"ALTHIST_DATABASE_URL": "memory://", "ALTHIST_PARALLEL_PROPOSALS": "maybe"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["ALTHIST_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["ALTHIST_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadPipelineDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("ALTHIST_DATABASE_URL", "memory://")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.UsesMemoryStore() {
		t.Error("UsesMemoryStore = false, want true")
	}
	if cfg.UniverseID != "cold_war_no_moon_landing" {
		t.Errorf("UniverseID = %q", cfg.UniverseID)
	}
	if cfg.RecentLimit != 15 {
		t.Errorf("RecentLimit = %d, want 15", cfg.RecentLimit)
	}
	if cfg.SubtopicAttempts != 3 || cfg.ProposalAAttempts != 3 || cfg.ProposalBAttempts != 1 {
		t.Errorf("attempts = %d/%d/%d, want 3/3/1", cfg.SubtopicAttempts, cfg.ProposalAAttempts, cfg.ProposalBAttempts)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if !cfg.ParallelProposals {
		t.Error("ParallelProposals = false, want true")
	}
	if cfg.ModelTimeout != 5*time.Minute {
		t.Errorf("ModelTimeout = %v, want 5m", cfg.ModelTimeout)
	}
	if cfg.CycleTimeout != 0 {
		t.Errorf("CycleTimeout = %v, want 0", cfg.CycleTimeout)
	}
	if cfg.SchedulerEnabled {
		t.Error("SchedulerEnabled = true, want false")
	}
	if cfg.ScheduleTime != "13:15" || cfg.Timezone != "Asia/Kolkata" {
		t.Errorf("schedule = %s %s", cfg.ScheduleTime, cfg.Timezone)
	}
	if cfg.ExportInterval != 0 {
		t.Errorf("ExportInterval = %v, want 0", cfg.ExportInterval)
	}
	if cfg.ExportS3Key != "althist/cold_war_no_moon_landing.jsonl" {
		t.Errorf("ExportS3Key = %q", cfg.ExportS3Key)
	}
	if got := cfg.Routes[gateway.RoleArbiter]; got.Provider != gateway.ProviderGroq {
		t.Errorf("arbiter provider = %q, want groq", got.Provider)
	}
}

func TestLoadProviderKeyAliases(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("ALTHIST_DATABASE_URL", "memory://")
	t.Setenv("OpenRouter", "or-legacy")
	t.Setenv("Groq", "groq-legacy")
	t.Setenv("GEMINI_API_KEY", "gem-new")
	t.Setenv("Gemini_Key", "gem-legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenRouterAPIKey != "or-legacy" {
		t.Errorf("OpenRouterAPIKey = %q", cfg.OpenRouterAPIKey)
	}
	if cfg.GroqAPIKey != "groq-legacy" {
		t.Errorf("GroqAPIKey = %q", cfg.GroqAPIKey)
	}
	if cfg.GeminiAPIKey != "gem-new" {
		t.Errorf("GeminiAPIKey = %q, want the canonical name to win", cfg.GeminiAPIKey)
	}
}

func TestLoadModelsFile(t *testing.T) {
	clearAllEnv(t)
	path := filepath.Join(t.TempDir(), "models.toml")
	content := `
[roles.proposal_a]
provider = "openrouter"
model = "google/gemini-2.0-flash"

[roles.arbiter]
temperature = 0.2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALTHIST_DATABASE_URL", "memory://")
	t.Setenv("ALTHIST_MODELS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := cfg.Routes[gateway.RoleProposalA]
	if a.Provider != "openrouter" || a.Model != "google/gemini-2.0-flash" {
		t.Errorf("proposal_a route = %+v", a)
	}
	arb := cfg.Routes[gateway.RoleArbiter]
	if arb.Model != "llama-3.3-70b-versatile" {
		t.Errorf("arbiter model = %q, want default kept", arb.Model)
	}
	if arb.Temperature == nil || *arb.Temperature != 0.2 {
		t.Errorf("arbiter temperature = %v", arb.Temperature)
	}
}

func TestLoadModelsFileUnknownRole(t *testing.T) {
	clearAllEnv(t)
	path := filepath.Join(t.TempDir(), "models.toml")
	if err := os.WriteFile(path, []byte("[roles.narrator]\nmodel = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALTHIST_DATABASE_URL", "memory://")
	t.Setenv("ALTHIST_MODELS_FILE", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "narrator") {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestLoadExportCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("ALTHIST_DATABASE_URL", "memory://")
	t.Setenv("ALTHIST_EXPORT_INTERVAL", "10m")
	t.Setenv("ALTHIST_EXPORT_S3_BUCKET", "my-bucket")
	t.Setenv("ALTHIST_EXPORT_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ALTHIST_EXPORT_S3_REGION", "eu-west-1")
	t.Setenv("ALTHIST_EXPORT_S3_KEY", "custom/key.jsonl")
	t.Setenv("ALTHIST_EXPORT_FILE", "/tmp/timeline.jsonl")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExportInterval != 10*time.Minute {
		t.Errorf("ExportInterval = %v, want 10m", cfg.ExportInterval)
	}
	if cfg.ExportS3Bucket != "my-bucket" {
		t.Errorf("ExportS3Bucket = %q", cfg.ExportS3Bucket)
	}
	if cfg.ExportS3Endpoint != "http://minio:9000" {
		t.Errorf("ExportS3Endpoint = %q", cfg.ExportS3Endpoint)
	}
	if cfg.ExportS3Region != "eu-west-1" {
		t.Errorf("ExportS3Region = %q", cfg.ExportS3Region)
	}
	if cfg.ExportS3Key != "custom/key.jsonl" {
		t.Errorf("ExportS3Key = %q", cfg.ExportS3Key)
	}
	if cfg.ExportFile != "/tmp/timeline.jsonl" {
		t.Errorf("ExportFile = %q", cfg.ExportFile)
	}
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "seed.json")
	yamlPath := filepath.Join(dir, "seed.yaml")
	listPath := filepath.Join(dir, "list.json")
	if err := os.WriteFile(jsonPath, []byte(`{"divergence_year": 1969, "premise": "Apollo 11 fails"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("divergence_year: 1969\nactors:\n  - USA\n  - USSR\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(listPath, []byte(`[1,2]`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadSeed(jsonPath)
	if err != nil {
		t.Fatalf("json seed: %v", err)
	}
	if !strings.Contains(string(got), `"premise":"Apollo 11 fails"`) {
		t.Errorf("json seed = %s", got)
	}

	got, err = LoadSeed(yamlPath)
	if err != nil {
		t.Fatalf("yaml seed: %v", err)
	}
	if string(got) != `{"actors":["USA","USSR"],"divergence_year":1969}` {
		t.Errorf("yaml seed = %s", got)
	}

	if _, err := LoadSeed(listPath); err == nil {
		t.Error("expected error for non-object seed")
	}

	_, err = LoadSeed(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing seed error = %v, want fs.ErrNotExist", err)
	}
}
