package memory

import (
	"encoding/json"
	"fmt"
	"math"

	"memchat/internal/models"
)

// Finding is one problem found in an import payload.
type Finding struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return f.Path + ": " + f.Message
}

// Validate checks an untrusted store payload before it is imported. It
// reports every problem it finds; an empty result means the payload may be
// imported.
func Validate(payload []byte) []Finding {
	findings := []Finding{}

	if !json.Valid(payload) {
		return append(findings, Finding{Path: "import", Message: "Invalid JSON format"})
	}

	domains, err := orderedObject(payload)
	if err != nil {
		return append(findings, Finding{Path: "root", Message: "Invalid JSON structure"})
	}

	for _, domain := range domains {
		docs, err := orderedObject(domain.value)
		if err != nil {
			findings = append(findings, Finding{Path: domain.key, Message: "Invalid domain structure"})
			continue
		}
		for _, entry := range docs {
			path := domain.key + "/" + entry.key

			var doc any
			_ = json.Unmarshal(entry.value, &doc)
			fields, ok := doc.(map[string]any)
			if !ok {
				findings = append(findings, Finding{Path: path, Message: "Document is undefined"})
				continue
			}
			v := &validator{}
			v.document(path, fields)
			findings = append(findings, v.findings...)
		}
	}
	return findings
}

type validator struct {
	findings []Finding
}

func (v *validator) add(path, message string) {
	v.findings = append(v.findings, Finding{Path: path, Message: message})
}

func (v *validator) document(path string, doc map[string]any) {
	v.optionalString(path+".id", doc["id"])
	v.documentMetadata(path+".metadata", doc["metadata"])

	if title, ok := doc["title"].(string); !ok || title == "" {
		v.add(path+".title", "Title is required and must be a non-empty string")
	}
	if _, ok := doc["description"].(string); !ok {
		v.add(path+".description", "Description is required and must be a string")
	}

	blocks, ok := doc["context_blocks"].([]any)
	if !ok {
		v.add(path+".context_blocks", "Must be an array of context blocks")
	}
	for i, block := range blocks {
		v.block(fmt.Sprintf("%s.context_blocks[%d]", path, i), block)
	}

	v.summary(path+".summary", doc["summary"])
	v.relationships(path+".relationships", doc["relationships"])
}

func (v *validator) documentMetadata(path string, raw any) {
	meta, ok := raw.(map[string]any)
	if !ok {
		v.add(path, "Metadata is required")
		return
	}
	if !validStatus(meta["status"]) {
		v.add(path+".status", "Status must be 'current', 'outdated', or 'deprecated'")
	}
	if !stringArray(meta["domain"]) {
		v.add(path+".domain", "Domain must be an array of strings")
	}
	if !validTimestamp(meta["timestamp"]) {
		v.add(path+".timestamp", "Timestamp must be a valid date string")
	}
	if version, ok := meta["version"].(string); !ok || version == "" {
		v.add(path+".version", "Version is required")
	}
	if !stringArray(meta["tags"]) {
		v.add(path+".tags", "Tags must be an array of strings")
	}
	if raw, ok := meta["confidence"]; ok && raw != nil && !validConfidence(raw) {
		v.add(path+".confidence", "Confidence must be a number between 0 and 1")
	}
	v.optionalString(path+".source", meta["source"])
}

func (v *validator) block(path string, raw any) {
	block, ok := raw.(map[string]any)
	if !ok {
		v.add(path, "Context block must be an object")
		return
	}

	if id, ok := block["id"].(string); !ok || id == "" {
		v.add(path+".id", "Block ID is required")
	}
	if _, ok := block["raw_content"].(string); !ok {
		v.add(path+".raw_content", "Raw content must be a string")
	}

	if structured, ok := block["structured_content"].(map[string]any); !ok {
		v.add(path+".structured_content", "Structured content is required")
	} else {
		v.stringList(path+".structured_content.main_points", structured["main_points"], "Main points must be an array")
		v.stringList(path+".structured_content.entities", structured["entities"], "Entities must be an array")
		v.stringList(path+".structured_content.concepts", structured["concepts"], "Concepts must be an array")
	}

	if meta, ok := block["metadata"].(map[string]any); !ok {
		v.add(path+".metadata", "Block metadata is required")
	} else {
		v.stringList(path+".metadata.tags", meta["tags"], "Block tags must be an array")
		v.stringList(path+".metadata.domain", meta["domain"], "Block domain must be an array")
		if !validTimestamp(meta["timestamp"]) {
			v.add(path+".metadata.timestamp", "Block timestamp must be a valid date")
		}
		if !validStatus(meta["status"]) {
			v.add(path+".metadata.status", "Block status must be 'current', 'outdated', or 'deprecated'")
		}
		if !validConfidence(meta["confidence"]) {
			v.add(path+".metadata.confidence", "Confidence must be a number between 0 and 1")
		}
		v.optionalString(path+".metadata.source", meta["source"])
	}

	if ctx, ok := block["context"].(map[string]any); !ok {
		v.add(path+".context", "Block context is required")
	} else {
		if _, ok := ctx["summary"].(string); !ok {
			v.add(path+".context.summary", "Block summary must be a string")
		}
		v.stringList(path+".context.related_blocks", ctx["related_blocks"], "Related blocks must be an array")
		v.optionalString(path+".context.parent_id", ctx["parent_id"])
		if raw, ok := ctx["sequence_index"]; ok && raw != nil && !integer(raw) {
			v.add(path+".context.sequence_index", "Sequence index must be an integer")
		}
	}
}

func (v *validator) summary(path string, raw any) {
	summary, ok := raw.(map[string]any)
	if !ok {
		v.add(path, "Summary object is required")
		return
	}
	if _, ok := summary["brief"].(string); !ok {
		v.add(path+".brief", "Brief summary is required and must be a string")
	}
	if _, ok := summary["detailed"].(string); !ok {
		v.add(path+".detailed", "Detailed summary is required and must be a string")
	}
	if !stringArray(summary["key_insights"]) {
		v.add(path+".key_insights", "Key insights must be an array of strings")
	}
}

func (v *validator) relationships(path string, raw any) {
	rel, ok := raw.(map[string]any)
	if !ok {
		v.add(path, "Relationships object is required")
		return
	}
	v.stringList(path+".prerequisites", rel["prerequisites"], "Prerequisites must be an array")
	v.stringList(path+".related_docs", rel["related_docs"], "Related docs must be an array")
	for _, key := range []string{"supersedes", "superseded_by"} {
		if raw, ok := rel[key]; ok && raw != nil {
			v.stringList(path+"."+key, raw, "Must be an array of document ids")
		}
	}
}

// stringList flags raw with message when it is not an array, and each
// element that is neither a string nor null.
func (v *validator) stringList(path string, raw any, message string) {
	items, ok := raw.([]any)
	if !ok {
		v.add(path, message)
		return
	}
	for i, item := range items {
		if _, ok := item.(string); !ok && item != nil {
			v.add(fmt.Sprintf("%s[%d]", path, i), "Must be a string")
		}
	}
}

// optionalString accepts a missing or null value, otherwise a string.
func (v *validator) optionalString(path string, raw any) {
	if raw == nil {
		return
	}
	if _, ok := raw.(string); !ok {
		v.add(path, "Must be a string")
	}
}

func validStatus(raw any) bool {
	s, ok := raw.(string)
	return ok && models.KnowledgeStatus(s).Valid()
}

func validTimestamp(raw any) bool {
	s, ok := raw.(string)
	if !ok {
		return false
	}
	_, ok = ParseTimestamp(s)
	return ok
}

func validConfidence(raw any) bool {
	c, ok := raw.(float64)
	return ok && c >= 0 && c <= 1
}

// integer reports whether raw is a JSON number that decodes into an int
// without loss.
func integer(raw any) bool {
	n, ok := raw.(float64)
	return ok && n == math.Trunc(n) && math.Abs(n) <= 1<<53
}

func stringArray(raw any) bool {
	items, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}
