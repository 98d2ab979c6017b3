package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/table"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model          string            `json:"model"`
			ResponseFormat map[string]string `json:"response_format"`
			Messages       []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json_object", body.ResponseFormat["type"])
		if assert.Len(t, body.Messages, 3) {
			assert.Contains(t, body.Messages[2].Content, "Source: acme")
		}

		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request() llm.Request {
	return llm.Request{
		Source:       "acme",
		Schema:       table.SchemaFromHeader([]string{"Date", "Description", "Amount"}),
		TruthCSV:     []byte("Date,Description,Amount\n01-08-2024,Rent,-1200\n"),
		DocumentText: "01-08-2024 Rent -1,200.00",
	}
}

func client(srv *httptest.Server, strict bool) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "test-model", Strict: strict}, nil)
}

func TestGenerate(t *testing.T) {
	content := `{"version": 1, "source": "other", "columns": [
		{"name": "Date", "role": "date"},
		{"name": "Description", "role": "description"},
		{"name": "Amount", "role": "amount"}], "min_rows": 2}`
	p, err := client(chatServer(t, content), false).Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "acme", p.Source)
	assert.Equal(t, 2, p.MinRows)
}

func TestGenerateSanitizesNearMiss(t *testing.T) {
	content := "```json\n" + `{"source": "acme", "columns": [{"name": "Date", "role": "date"}], "locale": "eu", "explanation": "x"}` + "\n```"
	p, err := client(chatServer(t, content), false).Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "EU", p.Locale)

	_, err = client(chatServer(t, content), true).Generate(context.Background(), request())
	assert.ErrorIs(t, err, llm.ErrGeneration)
}

func TestGenerateRejectsInvalidProgram(t *testing.T) {
	content := `{"version": 1, "source": "acme", "columns": [{"name": "Date", "role": "when"}]}`
	_, err := client(chatServer(t, content), false).Generate(context.Background(), request())
	assert.ErrorIs(t, err, llm.ErrGeneration)
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := client(srv, false).Generate(context.Background(), request())
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.NotErrorIs(t, err, llm.ErrGeneration)
}

func TestGenerateNeedsKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient(Config{}, nil).Generate(context.Background(), request())
	require.Error(t, err)
	assert.True(t, common.IsEnvironment(err))
}
