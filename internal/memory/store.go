// Package memory implements the domain-partitioned knowledge store that the
// chat orchestrator reads from and writes to.
//
// A Store is not safe for concurrent use; callers that share one between
// goroutines must serialise access themselves.
package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"memchat/internal/models"

	"go.uber.org/zap"
)

const (
	documentVersion = "1.0"
	titleLimit      = 50
	descLimit       = 100
)

type domainDocs struct {
	ids  []string
	docs map[string]*models.KnowledgeDocument
}

// Store maps domain names to documents. Domains and the documents inside
// them keep insertion order, which is the order search results come back in.
type Store struct {
	domains []string
	byName  map[string]*domainDocs
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Store)

// WithClock replaces the wall clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Clock returns the clock the store stamps new documents with.
func (s *Store) Clock() func() time.Time {
	return s.now
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		byName: make(map[string]*domainDocs),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write creates a new single-block document from content and files it under
// domain. It never updates an existing document.
func (s *Store) Write(content, domain string, meta *models.WriteMetadata) *models.KnowledgeDocument {
	now := s.now()
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	millis := now.UnixMilli()

	tags := []string{}
	status := models.StatusCurrent
	confidence := 1.0
	var source string
	if meta != nil {
		if meta.Tags != nil {
			tags = append(tags, meta.Tags...)
		}
		if meta.Status.Valid() {
			status = meta.Status
		}
		if meta.Confidence != nil && *meta.Confidence >= 0 && *meta.Confidence <= 1 {
			confidence = *meta.Confidence
		}
		source = meta.Source
	}

	block := models.ContextBlock{
		ID:         fmt.Sprintf("block_%d", millis),
		RawContent: content,
		StructuredContent: models.StructuredContent{
			MainPoints: []string{},
			Entities:   []string{},
			Concepts:   []string{},
		},
		Metadata: models.BlockMetadata{
			Tags:       tags,
			Domain:     []string{domain},
			Timestamp:  stamp,
			Status:     status,
			Confidence: confidence,
			Source:     source,
		},
		Context: models.BlockContext{
			RelatedBlocks: []string{},
		},
	}

	brief := truncate(content, descLimit, utf8.RuneCountInString(content))
	doc := &models.KnowledgeDocument{
		ID:            fmt.Sprintf("doc_%d", millis),
		Title:         deriveTitle(content),
		Description:   brief,
		ContextBlocks: []models.ContextBlock{block},
		Metadata: models.DocumentMetadata{
			Tags:      append([]string{}, tags...),
			Domain:    []string{domain},
			Timestamp: stamp,
			Version:   documentVersion,
			Status:    status,
			Source:    source,
		},
		Summary: models.DocumentSummary{
			Brief:       brief,
			Detailed:    content,
			KeyInsights: []string{},
		},
		Relationships: models.DocumentRelationships{
			Prerequisites: []string{},
			RelatedDocs:   []string{},
		},
	}

	if s.Get(domain, doc.ID) != nil {
		// Two writes inside one millisecond share an id. The later one wins.
		s.logger.Warn("Document id collision, replacing earlier document",
			zap.String("domain", domain),
			zap.String("document_id", doc.ID),
		)
	}
	s.Put(domain, doc)
	return doc
}

// Put inserts doc under domain, creating the domain on first use. A document
// with the same id is replaced in place and keeps its position.
func (s *Store) Put(domain string, doc *models.KnowledgeDocument) {
	d := s.ensure(domain)
	if _, ok := d.docs[doc.ID]; !ok {
		d.ids = append(d.ids, doc.ID)
	}
	d.docs[doc.ID] = doc
}

// EnsureDomain creates an empty domain if it does not exist yet.
func (s *Store) EnsureDomain(domain string) {
	s.ensure(domain)
}

func (s *Store) ensure(domain string) *domainDocs {
	d, ok := s.byName[domain]
	if !ok {
		d = &domainDocs{docs: make(map[string]*models.KnowledgeDocument)}
		s.byName[domain] = d
		s.domains = append(s.domains, domain)
	}
	return d
}

func (s *Store) Get(domain, id string) *models.KnowledgeDocument {
	d, ok := s.byName[domain]
	if !ok {
		return nil
	}
	return d.docs[id]
}

// Delete removes one document. The domain stays even if it becomes empty.
func (s *Store) Delete(domain, id string) bool {
	d, ok := s.byName[domain]
	if !ok {
		return false
	}
	if _, ok := d.docs[id]; !ok {
		return false
	}
	delete(d.docs, id)
	d.ids = removeString(d.ids, id)
	return true
}

func (s *Store) DeleteDomain(domain string) bool {
	if _, ok := s.byName[domain]; !ok {
		return false
	}
	delete(s.byName, domain)
	s.domains = removeString(s.domains, domain)
	return true
}

func (s *Store) HasDomain(domain string) bool {
	_, ok := s.byName[domain]
	return ok
}

// Domains returns domain names in insertion order.
func (s *Store) Domains() []string {
	return append([]string(nil), s.domains...)
}

// Documents returns the documents of one domain in insertion order.
func (s *Store) Documents(domain string) []*models.KnowledgeDocument {
	d, ok := s.byName[domain]
	if !ok {
		return nil
	}
	out := make([]*models.KnowledgeDocument, 0, len(d.ids))
	for _, id := range d.ids {
		out = append(out, d.docs[id])
	}
	return out
}

// Len counts documents across all domains.
func (s *Store) Len() int {
	n := 0
	for _, d := range s.byName {
		n += len(d.ids)
	}
	return n
}

// Merge copies every domain of other into s. A domain present in both is
// replaced wholesale by other's version; there is no per-document merge.
func (s *Store) Merge(other *Store) {
	for _, name := range other.domains {
		src := other.byName[name]
		dst := s.ensure(name)
		dst.ids = append([]string(nil), src.ids...)
		dst.docs = make(map[string]*models.KnowledgeDocument, len(src.docs))
		for id, doc := range src.docs {
			dst.docs[id] = doc
		}
	}
}

// Clone returns a copy whose domain and document indexes are independent of
// s. Documents themselves are shared since they are never mutated in place.
func (s *Store) Clone() *Store {
	c := NewStore(WithClock(s.now), WithLogger(s.logger))
	c.Merge(s)
	return c
}

func deriveTitle(content string) string {
	firstLine := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		firstLine = content[:i]
	}
	// The ellipsis depends on the full content length, not the first line.
	return truncate(firstLine, titleLimit, utf8.RuneCountInString(content))
}

func truncate(s string, limit, total int) string {
	runes := []rune(s)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	out := string(runes)
	if total > limit {
		out += "..."
	}
	return out
}

func removeString(list []string, target string) []string {
	for i, v := range list {
		if v == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
