package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
)

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate implements llm.Generator with chat/completions in JSON mode.
// Output that fails the program schema is an llm.ErrGeneration so the loop
// counts it as a failed iteration.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*parser.Program, error) {
	start := time.Now()
	logger := c.logger.With("source", req.Source, "model", c.cfg.Model)
	logger.Info("llm.generate.start",
		"refining", req.Refining(),
		"text_len", len(req.DocumentText),
		"temp", c.cfg.Temperature,
	)
	if c.cfg.APIKey == "" {
		return nil, common.EnvironmentError("openai: missing API key (OPENAI_API_KEY)", nil)
	}

	schema, err := json.MarshalIndent(parser.ProgramJSONSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "system", "content": "JSON Schema:\n" + string(schema)},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, logger)
	if err != nil {
		logger.Error("llm.generate.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("openai: %w", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode openai response: %v", llm.ErrGeneration, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in openai response", llm.ErrGeneration)
	}
	content := []byte(llm.StripCodeFence(cc.Choices[0].Message.Content))

	if !c.cfg.Strict {
		if cleaned, _, err := llm.SanitizeProgramJSON(content, logger); err == nil {
			content = cleaned
		}
	}
	p, err := parser.ParseProgram(content)
	if err != nil {
		logger.Error("llm.generate.invalid_program",
			"error", err,
			"content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %v", llm.ErrGeneration, err)
	}
	if p.Source != req.Source {
		logger.Warn("llm.generate.source_overridden", "got", p.Source)
		p.Source = req.Source
	}

	logger.Info("llm.generate.ok",
		"extractor", parser.Identity(p),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return p, nil
}
