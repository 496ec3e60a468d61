package memory

import (
	"strings"
	"time"

	"memchat/internal/models"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 shapes seen in stored documents.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Search returns the documents matching query, in store order. With a
// non-empty domain only that domain is scanned; otherwise every domain is.
func (s *Store) Search(query, domain string, filter *models.SearchFilter) []*models.KnowledgeDocument {
	needle := strings.ToLower(query)

	domains := s.domains
	if domain != "" {
		if !s.HasDomain(domain) {
			return []*models.KnowledgeDocument{}
		}
		domains = []string{domain}
	}

	results := []*models.KnowledgeDocument{}
	for _, name := range domains {
		domainHit := strings.Contains(strings.ToLower(name), needle)
		for _, doc := range s.Documents(name) {
			if !domainHit && !documentMatches(doc, needle) {
				continue
			}
			if !passesFilter(doc, filter) {
				continue
			}
			results = append(results, doc)
		}
	}
	return results
}

func documentMatches(doc *models.KnowledgeDocument, needle string) bool {
	if containsFold(doc.Title, needle) || containsFold(doc.Description, needle) {
		return true
	}
	for _, block := range doc.ContextBlocks {
		if containsFold(block.RawContent, needle) {
			return true
		}
	}
	for _, tag := range doc.Metadata.Tags {
		if containsFold(tag, needle) {
			return true
		}
	}
	return false
}

func passesFilter(doc *models.KnowledgeDocument, filter *models.SearchFilter) bool {
	if filter.Empty() {
		return true
	}

	if len(filter.Tags) > 0 && !hasAnyTag(doc.Metadata.Tags, filter.Tags) {
		return false
	}

	if filter.Before != "" || filter.After != "" {
		stamp, ok := ParseTimestamp(doc.Metadata.Timestamp)
		if !ok {
			return false
		}
		if filter.Before != "" {
			bound, ok := ParseTimestamp(filter.Before)
			if !ok || !stamp.Before(bound) {
				return false
			}
		}
		if filter.After != "" {
			bound, ok := ParseTimestamp(filter.After)
			if !ok || !stamp.After(bound) {
				return false
			}
		}
	}

	if filter.Status != "" && doc.Metadata.Status != filter.Status {
		return false
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}
