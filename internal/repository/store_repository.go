package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"memchat/internal/memory"
	"memchat/internal/models"
)

// StoreRepository loads and saves the whole knowledge store. It is only used
// at session boundaries, never in the middle of a chat turn.
type StoreRepository interface {
	Load(ctx context.Context) (*memory.Store, error)
	Save(ctx context.Context, store *memory.Store) error
}

const (
	domainsTable   = "memory_domains"
	documentsTable = "memory_documents"
)

type domainRow struct {
	name     string
	position int
}

type documentRow struct {
	domain   string
	id       string
	position int
	body     string
}

// flatten turns a store into table rows that keep store order.
func flatten(store *memory.Store) ([]domainRow, []documentRow, error) {
	var domains []domainRow
	var documents []documentRow
	for i, name := range store.Domains() {
		domains = append(domains, domainRow{name: name, position: i})
		for j, doc := range store.Documents(name) {
			body, err := json.Marshal(doc)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode document %s/%s: %w", name, doc.ID, err)
			}
			documents = append(documents, documentRow{domain: name, id: doc.ID, position: j, body: string(body)})
		}
	}
	return domains, documents, nil
}

// assemble rebuilds a store from rows already sorted by position.
func assemble(store *memory.Store, domains []string, documents []documentRow) (*memory.Store, error) {
	for _, name := range domains {
		store.EnsureDomain(name)
	}
	for _, row := range documents {
		var doc models.KnowledgeDocument
		if err := json.Unmarshal([]byte(row.body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", row.domain, row.id, err)
		}
		if doc.ID == "" {
			doc.ID = row.id
		}
		store.Put(row.domain, &doc)
	}
	return store, nil
}
