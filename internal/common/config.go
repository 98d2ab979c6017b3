package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/statement-agent/constants"
)

// Config holds all application configuration
type Config struct {
	Agent      AgentConfig
	Extraction ExtractionConfig
	Normalize  NormalizeConfig
	Database   DatabaseConfig
	LLM        LLMConfig
	Log        LogConfig
}

// AgentConfig holds refinement-loop configuration
type AgentConfig struct {
	MaxIterations int
	DataDir       string
	ParsersDir    string
	DebugDir      string
	DebugXLSX     bool
}

// ExtractionConfig holds extraction engine configuration
type ExtractionConfig struct {
	MinRows   int    // fallback to the line strategy below this many table rows
	Pdftotext string // binary name or absolute path
	GridOnly  bool   // pdf: layout-text table detection only
}

// NormalizeConfig holds value-normalization configuration
type NormalizeConfig struct {
	DatePatterns     []string // Go layouts, tried in order; nil -> built-in set
	OutputDateLayout string
	CurrencySymbols  string
	LocaleHint       string // none | US | EU | IN
	AmbiguousDecimal bool   // treat "1,234"/"1.234" style input as a decimal
}

// DatabaseConfig holds audit-trail database configuration
type DatabaseConfig struct {
	Driver      string // "sqlite" | "postgres" | "" (disabled)
	DSN         string
	MaxConns    int32
	MinConns    int32
	DialTimeout time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error.
func LoadDotEnv(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("config.dotenv.load_failed", "error", err)
		}
		return
	}
	logger.Debug("config.dotenv.loaded")
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations: getEnvAsInt("AGENT_MAX_ITERS", constants.DefaultMaxIterations),
			DataDir:       getEnv("DATA_DIR", constants.DefaultDataDir),
			ParsersDir:    getEnv("PARSERS_DIR", constants.DefaultParsersDir),
			DebugDir:      getEnv("DEBUG_DIR", constants.DefaultDebugDir),
			DebugXLSX:     getEnvAsBool("DEBUG_XLSX", false),
		},
		Extraction: ExtractionConfig{
			MinRows:   getEnvAsInt("EXTRACT_MIN_ROWS", constants.DefaultMinRows),
			Pdftotext: getEnv("PDFTOTEXT", constants.DefaultPdftotext),
			GridOnly:  getEnvAsBool("PDF_GRID_ONLY", false),
		},
		Normalize: NormalizeConfig{
			DatePatterns:     getEnvAsList("DATE_PATTERNS", ";"),
			OutputDateLayout: getEnv("OUTPUT_DATE_LAYOUT", constants.DefaultDateOut),
			CurrencySymbols:  getEnv("CURRENCY_SYMBOLS", constants.DefaultCurrency),
			LocaleHint:       getEnv("LOCALE_HINT", "none"),
			AmbiguousDecimal: getEnvAsBool("AMBIGUOUS_DECIMAL", false),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", ""),
			DSN:         getEnv("DB_URL", ""),
			MaxConns:    getEnvAsInt32("DB_MAX_CONNS", 4),
			MinConns:    getEnvAsInt32("DB_MIN_CONNS", 1),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key, sep string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LogLevel maps the configured level name to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("AGENT_MAX_ITERS", c.Agent.MaxIterations, Positive)
	v.Field("EXTRACT_MIN_ROWS", c.Extraction.MinRows, NonNegative)
	v.Field("DATA_DIR", c.Agent.DataDir, Required)
	v.Field("PARSERS_DIR", c.Agent.ParsersDir, Required)
	v.Field("DEBUG_DIR", c.Agent.DebugDir, Required)
	v.Field("OUTPUT_DATE_LAYOUT", c.Normalize.OutputDateLayout, Required)
	v.Field("LOCALE_HINT", strings.ToUpper(c.Normalize.LocaleHint), OneOf("", "NONE", "US", "EU", "IN"))
	v.Field("DB_DRIVER", c.Database.Driver, OneOf("", "sqlite", "postgres"))
	if c.Database.Driver == "postgres" {
		v.Field("DB_URL", c.Database.DSN, Required)
	}
	return v.Error()
}
