package models

type KnowledgeStatus string

const (
	StatusCurrent    KnowledgeStatus = "current"
	StatusOutdated   KnowledgeStatus = "outdated"
	StatusDeprecated KnowledgeStatus = "deprecated"
)

// Valid reports whether s is one of the three lifecycle states.
func (s KnowledgeStatus) Valid() bool {
	switch s {
	case StatusCurrent, StatusOutdated, StatusDeprecated:
		return true
	}
	return false
}

type StructuredContent struct {
	MainPoints []string `json:"main_points" yaml:"main_points"`
	Entities   []string `json:"entities" yaml:"entities"`
	Concepts   []string `json:"concepts" yaml:"concepts"`
}

type BlockMetadata struct {
	Tags       []string        `json:"tags" yaml:"tags"`
	Domain     []string        `json:"domain" yaml:"domain"`
	Timestamp  string          `json:"timestamp" yaml:"timestamp"`
	Status     KnowledgeStatus `json:"status" yaml:"status"`
	Confidence float64         `json:"confidence" yaml:"confidence"`
	Source     string          `json:"source,omitempty" yaml:"source,omitempty"`
}

type BlockContext struct {
	Summary       string   `json:"summary" yaml:"summary"`
	ParentID      string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	RelatedBlocks []string `json:"related_blocks" yaml:"related_blocks"`
	SequenceIndex *int     `json:"sequence_index,omitempty" yaml:"sequence_index,omitempty"`
}

// ContextBlock is the smallest stored unit: raw text plus whatever structure
// an enrichment step has attached to it.
type ContextBlock struct {
	ID                string            `json:"id" yaml:"id"`
	RawContent        string            `json:"raw_content" yaml:"raw_content"`
	StructuredContent StructuredContent `json:"structured_content" yaml:"structured_content"`
	Metadata          BlockMetadata     `json:"metadata" yaml:"metadata"`
	Context           BlockContext      `json:"context" yaml:"context"`
}

type DocumentMetadata struct {
	Tags       []string        `json:"tags" yaml:"tags"`
	Domain     []string        `json:"domain" yaml:"domain"`
	Timestamp  string          `json:"timestamp" yaml:"timestamp"`
	Version    string          `json:"version" yaml:"version"`
	Status     KnowledgeStatus `json:"status" yaml:"status"`
	Confidence float64         `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Source     string          `json:"source,omitempty" yaml:"source,omitempty"`
}

type DocumentSummary struct {
	Brief       string   `json:"brief" yaml:"brief"`
	Detailed    string   `json:"detailed" yaml:"detailed"`
	KeyInsights []string `json:"key_insights" yaml:"key_insights"`
}

// DocumentRelationships holds weak references by document id. They are never
// checked for existence.
type DocumentRelationships struct {
	Prerequisites []string `json:"prerequisites" yaml:"prerequisites"`
	RelatedDocs   []string `json:"related_docs" yaml:"related_docs"`
	Supersedes    []string `json:"supersedes,omitempty" yaml:"supersedes,omitempty"`
	SupersededBy  []string `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`
}

type KnowledgeDocument struct {
	ID            string                `json:"id" yaml:"id"`
	Title         string                `json:"title" yaml:"title"`
	Description   string                `json:"description" yaml:"description"`
	ContextBlocks []ContextBlock        `json:"context_blocks" yaml:"context_blocks"`
	Metadata      DocumentMetadata      `json:"metadata" yaml:"metadata"`
	Summary       DocumentSummary       `json:"summary" yaml:"summary"`
	Relationships DocumentRelationships `json:"relationships" yaml:"relationships"`
}

// WriteMetadata is the optional metadata a caller may attach to a write.
type WriteMetadata struct {
	Tags       []string        `json:"tags,omitempty" validate:"omitempty,dive,required"`
	Status     KnowledgeStatus `json:"status,omitempty" validate:"omitempty,oneof=current outdated deprecated"`
	Confidence *float64        `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Source     string          `json:"source,omitempty"`
}

// SearchFilter narrows a search. Every populated field must pass.
type SearchFilter struct {
	Tags   []string        `json:"tags,omitempty"`
	Before string          `json:"before,omitempty"`
	After  string          `json:"after,omitempty"`
	Status KnowledgeStatus `json:"status,omitempty"`
}

// Empty reports whether the filter constrains nothing.
func (f *SearchFilter) Empty() bool {
	return f == nil || (len(f.Tags) == 0 && f.Before == "" && f.After == "" && f.Status == "")
}
