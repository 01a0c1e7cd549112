package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONStrict(t *testing.T) {
	var out map[string]string
	strategy, err := DecodeJSON(`{"tone": "ironic"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "strict", strategy)
	assert.Equal(t, "ironic", out["tone"])
}

func TestDecodeJSONTrimsWhitespace(t *testing.T) {
	var out map[string]string
	strategy, err := DecodeJSON("\n  {\"tone\": \"formal\"}  \n", &out)
	require.NoError(t, err)
	assert.Equal(t, "strict", strategy)
}

func TestDecodeJSONFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"tone\": \"selling\", \"score\": 7}\n```\nHope that helps!"

	var out map[string]any
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "fenced_block", strategy)
	assert.Equal(t, "selling", out["tone"])
	assert.EqualValues(t, 7, out["score"])
}

func TestDecodeJSONBareFence(t *testing.T) {
	raw := "```\n{\"tone\": \"medical\"}\n```"

	var out map[string]string
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "fenced_block", strategy)
	assert.Equal(t, "medical", out["tone"])
}

func TestDecodeJSONOutermostBraces(t *testing.T) {
	raw := `Sure! The analysis gives {"tone": "provocative", "nested": {"ok": true}} as requested.`

	var out map[string]any
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "outermost_braces", strategy)
	assert.Equal(t, "provocative", out["tone"])
}

func TestDecodeJSONQuoteNormalization(t *testing.T) {
	raw := `{'tone': 'storytelling'}`

	var out map[string]string
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "quote_normalization", strategy)
	assert.Equal(t, "storytelling", out["tone"])
}

func TestDecodeJSONSmartQuotes(t *testing.T) {
	raw := `{“tone”: “informational”}`

	var out map[string]string
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "quote_normalization", strategy)
	assert.Equal(t, "informational", out["tone"])
}

func TestDecodeJSONHopeless(t *testing.T) {
	var out map[string]string
	_, err := DecodeJSON("I could not produce any structured output, sorry.", &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeJSONStrategyOrder(t *testing.T) {
	// A body that both the fence and brace strategies could serve must be
	// taken from the fence, the stricter of the two.
	raw := "prefix {\"stray\": true}\n```json\n{\"tone\": \"conversational\"}\n```"

	var out map[string]any
	strategy, err := DecodeJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "fenced_block", strategy)
	assert.Equal(t, "conversational", out["tone"])
}
