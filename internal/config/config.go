// Package config loads paperkg's process-wide settings from the environment
// once at startup, in the teacher's own LoadEnv/GetEnv* idiom.
package config

import (
	"fmt"

	"paperkg/internal/util"
)

// Config is the immutable set of settings read once in main and passed down
// explicitly. A few settings are read elsewhere: main reads DEBUG and
// DOWNLOAD_DIR directly, and internal/storage reads its own AWS_* variables.
type Config struct {
	DatabaseURL string

	ChatBaseURL  string
	ChatAPIKey   string
	ChatModel    string
	EmbedBaseURL string
	EmbedAPIKey  string
	EmbedModel   string

	ParserBaseURL string
	ParserAPIKey  string

	OpenAlexBaseURL string
	ArxivBaseURL    string

	DebugDir string

	ExtractChunkingEnabled bool
	ExtractTokenBudget     int

	AgentStepCap int

	DefinerBatchSize          int
	IntegrationResolveLimit   int
	SimilarityBatchConcurrent int
}

// Load reads .env (if present, best-effort) then builds a Config from the
// process environment, applying the same defaults the teacher's adapters use
// where SPEC_FULL.md does not fix a value.
func Load() (*Config, error) {
	util.LoadEnv()

	cfg := &Config{
		DatabaseURL: util.GetEnv("DATABASE_URL"),

		ChatBaseURL:  util.GetEnvString("AI_CHAT_BASE_URL", ""),
		ChatAPIKey:   util.GetEnv("AI_CHAT_API_KEY"),
		ChatModel:    util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini"),
		EmbedBaseURL: util.GetEnvString("AI_EMBED_BASE_URL", ""),
		EmbedAPIKey:  util.GetEnv("AI_EMBED_API_KEY"),
		EmbedModel:   util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),

		ParserBaseURL: util.GetEnvString("PARSER_BASE_URL", ""),
		ParserAPIKey:  util.GetEnv("PARSER_API_KEY"),

		OpenAlexBaseURL: util.GetEnvString("OPENALEX_BASE_URL", "https://api.openalex.org"),
		ArxivBaseURL:    util.GetEnvString("ARXIV_BASE_URL", "http://export.arxiv.org/api"),

		DebugDir: util.GetEnvString("DEBUG_DIR", "debug"),

		ExtractChunkingEnabled: util.GetEnvBool("EXTRACT_CHUNKING_ENABLED", true),
		ExtractTokenBudget:     int(util.GetEnvNumeric("EXTRACT_TOKEN_BUDGET", 6000)),

		AgentStepCap: int(util.GetEnvNumeric("AGENT_STEP_CAP", 25)),

		DefinerBatchSize:          int(util.GetEnvNumeric("DEFINER_BATCH_SIZE", 50)),
		IntegrationResolveLimit:   int(util.GetEnvNumeric("INTEGRATION_RESOLVE_LIMIT", 10)),
		SimilarityBatchConcurrent: int(util.GetEnvNumeric("SIMILARITY_BATCH_CONCURRENT", 5)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ChatAPIKey == "" {
		return nil, fmt.Errorf("AI_CHAT_API_KEY is required")
	}

	return cfg, nil
}
