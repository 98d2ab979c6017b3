package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/statement-agent/internal/parser"
)

// StripCodeFence removes a surrounding ```json ... ``` block, which models
// add even when asked for bare JSON.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// SanitizeProgramJSON makes near-miss model output acceptable to the strict
// program schema:
// - drops nulls and keys the schema does not know
// - fills a missing version
// - coerces numeric strings and floats for integer fields
// - upper-cases the locale and maps "none" to ""
// - trims string lists and drops their empty entries
func SanitizeProgramJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(string(raw))), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	props, _ := parser.ProgramJSONSchema()["properties"].(map[string]any)
	var changed []string
	for k, v := range maps.Clone(m) {
		if _, ok := props[k]; !ok {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
			continue
		}
		if v == nil {
			delete(m, k)
			changed = append(changed, k+"(null)")
		}
	}

	for _, k := range []string{"version", "min_rows"} {
		if v, ok := m[k]; ok {
			n, ok := asInt(v)
			if !ok {
				delete(m, k)
				changed = append(changed, k+"(type)")
				continue
			}
			if f, isFloat := v.(float64); !isFloat || f != float64(n) {
				changed = append(changed, k+"(coerced)")
			}
			m[k] = n
		}
	}

	if _, ok := m["version"]; !ok {
		m["version"] = parser.ProgramVersion
		changed = append(changed, "version(default)")
	}

	if v, ok := m["locale"].(string); ok {
		loc := strings.ToUpper(strings.TrimSpace(v))
		if loc == "NONE" {
			loc = ""
		}
		if loc != v {
			m["locale"] = loc
			changed = append(changed, "locale")
		}
	}

	for _, k := range []string{"date_patterns", "credit_keywords", "debit_keywords", "skip_patterns"} {
		list, ok := m[k].([]any)
		if !ok {
			continue
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) != len(list) {
			changed = append(changed, k+"(empty)")
		}
		m[k] = out
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		slices.Sort(changed)
		logger.Warn("llm.generate.sanitized", "changed", changed)
	}
	return out, changed, nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(math.Round(t)), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
