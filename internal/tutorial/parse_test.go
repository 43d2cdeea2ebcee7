package tutorial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/codetour/pkg/schema"
)

func TestParseAbstractions_NormalizesMessyOutput(t *testing.T) {
	response := "Here are the abstractions:\n```json\n" + `[
		{"name": "Parser", "description": "Reads input.", "file_indices": [0, "2 # lexer.go", 1.0]},
		{"name": "Ghost", "description": "Refers nowhere.", "file_indices": [99]},
		{"description": "Nameless, dropped."}
	]` + "\n```"

	got, err := parseAbstractions(response, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Parser", got[0].Name)
	assert.Equal(t, []int{0, 2, 1}, got[0].FileIndices)

	assert.Equal(t, "Ghost", got[1].Name)
	assert.Empty(t, got[1].FileIndices, "out-of-range indices are dropped")
}

func TestParseAbstractions_CapsAtMaximum(t *testing.T) {
	response := `[`
	for i := 0; i < 15; i++ {
		if i > 0 {
			response += ","
		}
		response += `{"name": "A", "description": "d"}`
	}
	response += `]`

	got, err := parseAbstractions(response, 1)
	require.NoError(t, err)
	assert.Len(t, got, maxAbstractions)
}

func TestParseAbstractions_RejectsEmptyAndGarbage(t *testing.T) {
	_, err := parseAbstractions(`[]`, 1)
	require.Error(t, err)

	_, err = parseAbstractions("I could not find any abstractions, sorry!", 1)
	require.Error(t, err)
	var ctErr *schema.CodetourError
	require.True(t, errors.As(err, &ctErr))
	assert.Equal(t, schema.ErrCodeLLM, ctErr.Code)
}

func TestParseRelationships_DropsInvalidEdges(t *testing.T) {
	response := `{
		"summary": "A **pipeline** that turns repos into tutorials.",
		"details": [
			{"from": 0, "to": 1, "label": "Feeds"},
			{"from": 1, "to": 7, "label": "Dangling"},
			{"from": "0", "to": "1", "label": "Stringly"}
		]
	}`

	got, err := parseRelationships(response, 2)
	require.NoError(t, err)
	assert.Contains(t, got.Summary, "pipeline")
	require.Len(t, got.Details, 2)
	assert.Equal(t, "Feeds", got.Details[0].Label)
	assert.Equal(t, 0, got.Details[1].From)
	assert.Equal(t, 1, got.Details[1].To)
}

func TestParseRelationships_RequiresSummary(t *testing.T) {
	_, err := parseRelationships(`{"details": []}`, 2)
	require.Error(t, err)
}

func TestParseChapterOrder_RepairsPermutation(t *testing.T) {
	// Duplicates dropped, out-of-range dropped, missing indices appended.
	got, err := parseChapterOrder(`[2, 2, "0 # Parser", 9]`, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1, 3}, got)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `[1,2]`, extractJSON("The order is: [1,2] as requested."))
	assert.Equal(t, `{"a": [1]}`, extractJSON(`prose {"a": [1]} trailing`))
}
