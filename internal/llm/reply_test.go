package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[]`, StripCodeFence("```json\n[]\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("Sure:\n```\n{\"a\":1}\n```\nbye"))
	assert.Equal(t, `[1]`, StripCodeFence("  [1]  "))
	assert.Equal(t, ``, StripCodeFence("```"))
	assert.Equal(t, ``, StripCodeFence("```json\n```"))

	// One-line fences keep their body.
	assert.Equal(t, `[]`, StripCodeFence("```[]```"))
	assert.Equal(t, `[]`, StripCodeFence("```json []```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("Result: ```json {\"a\":1}``` done"))
	assert.Equal(t, `true`, StripCodeFence("```true```"))
	assert.Equal(t, `[1]`, StripCodeFence("```\n[1]\n```"))
	assert.Equal(t, `[1]`, StripCodeFence("```JSON\r\n[1]\r\n```"))
}

func TestDecodeReply(t *testing.T) {
	var xs []int
	require.NoError(t, DecodeReply("```json\n[1,2]\n```", &xs))
	assert.Equal(t, []int{1, 2}, xs)

	require.NoError(t, DecodeReply("```[]```", &xs))
	assert.Empty(t, xs)
	require.NoError(t, DecodeReply("```json [3]```", &xs))
	assert.Equal(t, []int{3}, xs)

	var m map[string]any
	require.NoError(t, DecodeReply(`Here it is: {"refined_patterns": ["x"]} hope it helps`, &m))
	assert.Contains(t, m, "refined_patterns")

	assert.ErrorIs(t, DecodeReply("not json at all", &m), ErrInvalidJSON)
	assert.ErrorIs(t, DecodeReply("   ", &m), ErrInvalidJSON)
}
