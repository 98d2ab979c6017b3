package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/llm/openai"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func baseConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.LoadConfig()
	dir := t.TempDir()
	cfg.Agent.DataDir = filepath.Join(dir, "data")
	cfg.Agent.ParsersDir = filepath.Join(dir, "custom_parsers")
	cfg.Agent.DebugDir = filepath.Join(dir, "debug")
	cfg.Database.Driver = ""
	cfg.Normalize.LocaleHint = "none"
	return cfg
}

func TestNormalizeOptions(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Normalize.LocaleHint = "eu"
	cfg.Normalize.DatePatterns = []string{"2006/01/02"}
	cfg.Normalize.AmbiguousDecimal = true

	opts, err := NormalizeOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, constants.LocaleEU, opts.Locale)
	assert.Equal(t, []string{"2006/01/02"}, opts.DatePatterns)
	assert.True(t, opts.AmbiguousDecimal)

	cfg.Normalize.LocaleHint = "mars"
	_, err = NormalizeOptions(cfg)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNewGenerator(t *testing.T) {
	cfg := baseConfig(t)

	g, err := NewGenerator("", cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &llm.TemplateGenerator{}, g)

	cfg.LLM.APIKey = ""
	_, err = NewGenerator(GeneratorOpenAI, cfg, quietLogger())
	assert.True(t, common.IsEnvironment(err))

	cfg.LLM.APIKey = "sk-test"
	g, err = NewGenerator(GeneratorOpenAI, cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, g)

	_, err = NewGenerator("claude", cfg, quietLogger())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNewAgentWithDatabase(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "audit.db")

	a, db, err := NewAgent(context.Background(), cfg, AgentParams{}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()
	assert.NotNil(t, a)

	cfg.Database.Driver = ""
	_, db, err = NewAgent(context.Background(), cfg, AgentParams{}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestNewLoggerQuiet(t *testing.T) {
	l := NewLogger(io.Discard, slog.LevelDebug, true)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
}
