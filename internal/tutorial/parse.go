package tutorial

import (
	"encoding/json"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/avelez/codetour/pkg/schema"
)

// LLM responses are normalized through jq programs before decoding: models
// occasionally emit indices as strings ("0 # main.py"), omit optional fields
// or wrap numbers unexpectedly, and the queries flatten all of that into the
// exact shape the typed structs expect. Invalid entries map to index -1 and
// are dropped by the range checks below.
var (
	abstractionsQuery = mustParse(`[ .[] | {
		name: (.name // "" | tostring),
		description: (.description // "" | tostring),
		file_indices: ((.file_indices // []) | map(
			if type == "string" then ((split(" ")[0] | tonumber | floor)? // -1)
			elif type == "number" then floor
			else -1 end))
	} ]`)

	relationshipsQuery = mustParse(`{
		summary: (.summary // "" | tostring),
		details: ((.details // []) | map({
			from: ((.from | tonumber | floor)? // -1),
			to: ((.to | tonumber | floor)? // -1),
			label: (.label // "" | tostring)
		}))
	}`)

	chapterOrderQuery = mustParse(`[ .[] |
		if type == "string" then ((split(" ")[0] | tonumber | floor)? // -1)
		elif type == "number" then floor
		else -1 end ]`)
)

func mustParse(q string) *gojq.Query {
	query, err := gojq.Parse(q)
	if err != nil {
		panic(err)
	}
	return query
}

// extractJSON pulls the JSON document out of an LLM response, preferring a
// fenced code block and falling back to the outermost bracket pair.
func extractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	var end int
	if text[start] == '[' {
		end = strings.LastIndex(text, "]")
	} else {
		end = strings.LastIndex(text, "}")
	}
	if end <= start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// normalize decodes the response's JSON payload, runs it through the jq
// program and re-decodes the normalized document into out.
func normalize(response string, query *gojq.Query, out any) error {
	var doc any
	if err := json.Unmarshal([]byte(extractJSON(response)), &doc); err != nil {
		return schema.NewError(schema.ErrCodeLLM, "response is not valid JSON").WithCause(err)
	}

	iter := query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return schema.NewError(schema.ErrCodeLLM, "response normalization produced no output")
	}
	if err, isErr := v.(error); isErr {
		return schema.NewError(schema.ErrCodeLLM, "response has unexpected shape").WithCause(err)
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return schema.NewError(schema.ErrCodeLLM, "encode normalized response").WithCause(err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return schema.NewError(schema.ErrCodeLLM, "decode normalized response").WithCause(err)
	}
	return nil
}

// parseAbstractions decodes and validates the identify-abstractions response.
// Out-of-range file indices are dropped; an empty result is an error.
func parseAbstractions(response string, fileCount int) ([]schema.Abstraction, error) {
	var raw []schema.Abstraction
	if err := normalize(response, abstractionsQuery, &raw); err != nil {
		return nil, err
	}

	var out []schema.Abstraction
	for _, a := range raw {
		if a.Name == "" {
			continue
		}
		var indices []int
		for _, idx := range a.FileIndices {
			if idx >= 0 && idx < fileCount {
				indices = append(indices, idx)
			}
		}
		a.FileIndices = indices
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, schema.NewError(schema.ErrCodeLLM, "no valid abstractions in response")
	}
	if len(out) > maxAbstractions {
		out = out[:maxAbstractions]
	}
	return out, nil
}

// parseRelationships decodes the relationship-analysis response, dropping
// edges that refer to unknown abstraction indices.
func parseRelationships(response string, abstractionCount int) (*schema.RelationshipAnalysis, error) {
	var analysis schema.RelationshipAnalysis
	if err := normalize(response, relationshipsQuery, &analysis); err != nil {
		return nil, err
	}
	if analysis.Summary == "" {
		return nil, schema.NewError(schema.ErrCodeLLM, "relationship analysis has no summary")
	}

	var details []schema.Relationship
	for _, r := range analysis.Details {
		if r.From >= 0 && r.From < abstractionCount && r.To >= 0 && r.To < abstractionCount {
			details = append(details, r)
		}
	}
	analysis.Details = details
	return &analysis, nil
}

// parseChapterOrder decodes the ordering response into a permutation of
// [0, abstractionCount): duplicates and unknown indices are dropped, and any
// abstraction the model skipped is appended at the end.
func parseChapterOrder(response string, abstractionCount int) ([]int, error) {
	var raw []int
	if err := normalize(response, chapterOrderQuery, &raw); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, abstractionCount)
	order := make([]int, 0, abstractionCount)
	for _, idx := range raw {
		if idx >= 0 && idx < abstractionCount && !seen[idx] {
			seen[idx] = true
			order = append(order, idx)
		}
	}
	for i := 0; i < abstractionCount; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}
