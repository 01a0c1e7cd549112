package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no recovery strategy could extract a JSON
// document from the model output.
var ErrNoJSON = errors.New("no parsable JSON in model output")

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// recoveryStrategy is one attempt at extracting a JSON document out of
// raw model output. It returns the candidate text and whether the
// strategy applied at all.
type recoveryStrategy struct {
	name  string
	apply func(raw string) (string, bool)
}

// recoveryChain is the fixed, ordered set of strategies. Strictest
// first; each later strategy tolerates more damage. The order never
// changes at runtime.
var recoveryChain = []recoveryStrategy{
	{
		name: "strict",
		apply: func(raw string) (string, bool) {
			return strings.TrimSpace(raw), true
		},
	},
	{
		name: "fenced_block",
		apply: func(raw string) (string, bool) {
			m := fencedBlockRe.FindStringSubmatch(raw)
			if m == nil {
				return "", false
			}
			return strings.TrimSpace(m[1]), true
		},
	},
	{
		name: "outermost_braces",
		apply: func(raw string) (string, bool) {
			start := strings.Index(raw, "{")
			end := strings.LastIndex(raw, "}")
			if start < 0 || end <= start {
				return "", false
			}
			return raw[start : end+1], true
		},
	},
	{
		name: "quote_normalization",
		apply: func(raw string) (string, bool) {
			start := strings.Index(raw, "{")
			end := strings.LastIndex(raw, "}")
			if start < 0 || end <= start {
				return "", false
			}
			candidate := raw[start : end+1]
			replacer := strings.NewReplacer(
				"“", `"`,
				"”", `"`,
				"‘", `"`,
				"’", `"`,
				"'", `"`,
			)
			return replacer.Replace(candidate), true
		},
	},
}

// DecodeJSON runs the recovery chain over raw model output and decodes
// the first candidate that parses into out. It returns the name of the
// strategy that succeeded.
func DecodeJSON(raw string, out any) (string, error) {
	var lastErr error
	for _, strategy := range recoveryChain {
		candidate, ok := strategy.apply(raw)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), out); err != nil {
			lastErr = err
			continue
		}
		return strategy.name, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNoJSON, lastErr)
	}
	return "", ErrNoJSON
}
