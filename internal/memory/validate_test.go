package memory

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writtenPayload(t *testing.T) []byte {
	t.Helper()
	s := newTestStore()
	s.Write("Pro plan costs 20 USD", "pricing", nil)
	s.Write("Deploys run on Fridays", "technical", nil)
	data, err := s.Export()
	require.NoError(t, err)
	return data
}

func TestValidateConformantPayload(t *testing.T) {
	assert.Empty(t, Validate(writtenPayload(t)))
}

func TestValidateMissingStatus(t *testing.T) {
	var raw map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(writtenPayload(t), &raw))
	meta := raw["technical"]["doc_1737799200001"]["metadata"].(map[string]any)
	delete(meta, "status")
	payload, err := json.Marshal(raw)
	require.NoError(t, err)

	findings := Validate(payload)

	require.NotEmpty(t, findings)
	var found bool
	for _, f := range findings {
		if strings.Contains(f.Path, "technical/doc_1737799200001") && strings.HasSuffix(f.Path, "metadata.status") {
			found = true
		}
	}
	assert.True(t, found, "findings: %v", findings)
}

func TestValidateStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Finding
	}{
		{name: "bad json", payload: `{"a":`, want: Finding{Path: "import", Message: "Invalid JSON format"}},
		{name: "not an object", payload: `[1,2]`, want: Finding{Path: "root", Message: "Invalid JSON structure"}},
		{name: "domain not an object", payload: `{"pricing": 3}`, want: Finding{Path: "pricing", Message: "Invalid domain structure"}},
		{name: "null document", payload: `{"pricing": {"doc_1": null}}`, want: Finding{Path: "pricing/doc_1", Message: "Document is undefined"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []Finding{tt.want}, Validate([]byte(tt.payload)))
		})
	}
}

func TestValidateBlockFields(t *testing.T) {
	payload := `{"d": {"doc_1": {
		"id": "doc_1", "title": "t", "description": "",
		"metadata": {"tags": [], "domain": ["d"], "timestamp": "2025-01-25", "version": "1.0", "status": "current"},
		"summary": {"brief": "", "detailed": "", "key_insights": []},
		"relationships": {"prerequisites": [], "related_docs": []},
		"context_blocks": [{
			"id": "b", "raw_content": 5,
			"structured_content": {"main_points": [], "entities": []},
			"metadata": {"tags": [], "domain": [], "timestamp": "2025-01-25", "status": "stale", "confidence": 1.5},
			"context": {"related_blocks": []}
		}]
	}}}`

	var paths []string
	for _, f := range Validate([]byte(payload)) {
		paths = append(paths, f.Path)
	}

	assert.Equal(t, []string{
		"d/doc_1.context_blocks[0].raw_content",
		"d/doc_1.context_blocks[0].structured_content.concepts",
		"d/doc_1.context_blocks[0].metadata.status",
		"d/doc_1.context_blocks[0].metadata.confidence",
		"d/doc_1.context_blocks[0].context.summary",
	}, paths)
}

func TestValidatedPayloadDecodes(t *testing.T) {
	block := func(doc map[string]any) map[string]any {
		return doc["context_blocks"].([]any)[0].(map[string]any)
	}
	section := func(m map[string]any, key string) map[string]any {
		return m[key].(map[string]any)
	}

	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		want   string
	}{
		{name: "optional fields set", mutate: func(doc map[string]any) {
			section(doc, "metadata")["confidence"] = 0.5
			section(doc, "metadata")["source"] = "import"
			section(block(doc), "metadata")["source"] = "chat"
			section(block(doc), "context")["parent_id"] = "block_0"
			section(block(doc), "context")["sequence_index"] = 2
			section(doc, "relationships")["supersedes"] = []any{"doc_0"}
		}},
		{name: "minute precision timestamp", mutate: func(doc map[string]any) {
			section(doc, "metadata")["timestamp"] = "2025-01-01T10:00Z"
			section(block(doc), "metadata")["timestamp"] = "2025-01-01T10:00+03:00"
		}},
		{name: "optional fields null", mutate: func(doc map[string]any) {
			section(doc, "metadata")["confidence"] = nil
			section(block(doc), "context")["sequence_index"] = nil
		}},
		{name: "document confidence not a number", mutate: func(doc map[string]any) {
			section(doc, "metadata")["confidence"] = "high"
		}, want: ".metadata.confidence"},
		{name: "document confidence out of range", mutate: func(doc map[string]any) {
			section(doc, "metadata")["confidence"] = 2
		}, want: ".metadata.confidence"},
		{name: "document source not a string", mutate: func(doc map[string]any) {
			section(doc, "metadata")["source"] = 7
		}, want: ".metadata.source"},
		{name: "document id not a string", mutate: func(doc map[string]any) {
			doc["id"] = 1
		}, want: ".id"},
		{name: "block source not a string", mutate: func(doc map[string]any) {
			section(block(doc), "metadata")["source"] = true
		}, want: ".context_blocks[0].metadata.source"},
		{name: "parent id not a string", mutate: func(doc map[string]any) {
			section(block(doc), "context")["parent_id"] = 3
		}, want: ".context_blocks[0].context.parent_id"},
		{name: "fractional sequence index", mutate: func(doc map[string]any) {
			section(block(doc), "context")["sequence_index"] = 1.5
		}, want: ".context_blocks[0].context.sequence_index"},
		{name: "related block not a string", mutate: func(doc map[string]any) {
			section(block(doc), "context")["related_blocks"] = []any{4}
		}, want: ".context_blocks[0].context.related_blocks[0]"},
		{name: "main point not a string", mutate: func(doc map[string]any) {
			section(block(doc), "structured_content")["main_points"] = []any{map[string]any{}}
		}, want: ".context_blocks[0].structured_content.main_points[0]"},
		{name: "supersedes not an array", mutate: func(doc map[string]any) {
			section(doc, "relationships")["superseded_by"] = "doc_9"
		}, want: ".relationships.superseded_by"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]map[string]map[string]any
			require.NoError(t, json.Unmarshal(writtenPayload(t), &raw))
			var docPath string
			for id, doc := range raw["pricing"] {
				docPath = "pricing/" + id
				tt.mutate(doc)
			}
			payload, err := json.Marshal(raw)
			require.NoError(t, err)

			findings := Validate(payload)
			_, decodeErr := Decode(payload)

			if tt.want == "" {
				assert.Empty(t, findings)
				assert.NoError(t, decodeErr)
				return
			}
			require.Len(t, findings, 1, "findings: %v", findings)
			assert.Equal(t, docPath+tt.want, findings[0].Path)
		})
	}
}

func TestDecodeKeepsOrder(t *testing.T) {
	payload := `{"zeta": {"doc_2": {"id": "doc_2", "title": "two"}, "doc_1": {"id": "doc_1", "title": "one"}}, "alpha": {}}`

	s, err := Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, s.Domains())
	docs := s.Documents("zeta")
	require.Len(t, docs, 2)
	assert.Equal(t, "doc_2", docs[0].ID)
	assert.Equal(t, "doc_1", docs[1].ID)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.True(t, strings.Index(string(out), "zeta") < strings.Index(string(out), "alpha"))
}

func TestExportRoundTrip(t *testing.T) {
	data := writtenPayload(t)
	assert.Contains(t, string(data), "\n  \"pricing\": {")

	s, err := Decode(data)
	require.NoError(t, err)
	again, err := s.Export()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[]`))
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestMarshalYAMLKeepsOrder(t *testing.T) {
	s := newTestStore()
	s.Write("b note", "beta", nil)
	s.Write("a note", "alpha", nil)

	out, err := yaml.Marshal(s)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.Index(text, "beta:") < strings.Index(text, "alpha:"))
	assert.Contains(t, text, "raw_content: b note")
}
