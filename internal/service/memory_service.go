package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"memchat/internal/memory"
	"memchat/internal/models"
	"memchat/internal/repository"
	"memchat/pkg/metrics"

	"go.uber.org/zap"
)

var ErrInvalidImport = errors.New("import payload failed validation")

// ImportError carries every validation finding of a rejected payload.
type ImportError struct {
	Findings []memory.Finding
}

func (e *ImportError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidImport, strings.Join(parts, "; "))
}

func (e *ImportError) Unwrap() error {
	return ErrInvalidImport
}

// MemoryService owns the knowledge store. All access goes through its lock,
// so several chat sessions can share one store.
type MemoryService struct {
	mu      sync.RWMutex
	store   *memory.Store
	repo    repository.StoreRepository
	dirty   bool
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewMemoryService(store *memory.Store, repo repository.StoreRepository, collector *metrics.Collector, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		store:   store,
		repo:    repo,
		metrics: collector,
		logger:  logger,
	}
}

// LoadMemoryService reads the store through repo and wraps it.
func LoadMemoryService(ctx context.Context, repo repository.StoreRepository, collector *metrics.Collector, logger *zap.Logger) (*MemoryService, error) {
	store, err := repo.Load(ctx)
	collector.RecordPersistence("load", err)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory store: %w", err)
	}
	return NewMemoryService(store, repo, collector, logger), nil
}

// Write stores content as a new document. The change is kept in memory
// until the next Persist.
func (s *MemoryService) Write(content, domain string, meta *models.WriteMetadata) *models.KnowledgeDocument {
	s.mu.Lock()
	doc := s.store.Write(sanitizeUTF8(content), sanitizeUTF8(domain), meta)
	s.dirty = true
	s.mu.Unlock()

	s.metrics.RecordWrite()
	s.logger.Info("Memory written",
		zap.String("domain", domain),
		zap.String("document_id", doc.ID),
	)
	return doc
}

func (s *MemoryService) Search(query, domain string, filter *models.SearchFilter) []*models.KnowledgeDocument {
	s.mu.RLock()
	results := s.store.Search(query, domain, filter)
	s.mu.RUnlock()

	s.metrics.RecordSearch(len(results))
	s.logger.Info("Memory search completed",
		zap.String("query", query),
		zap.String("domain", domain),
		zap.Int("results", len(results)),
	)
	return results
}

func (s *MemoryService) Get(domain, id string) *models.KnowledgeDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Get(domain, id)
}

// Snapshot returns a copy of the store that the caller may read freely.
func (s *MemoryService) Snapshot() *memory.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Clone()
}

// Export renders the whole store as indented JSON.
func (s *MemoryService) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Export()
}

// Persist saves the store if anything changed since the last save.
func (s *MemoryService) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *MemoryService) saveLocked(ctx context.Context) error {
	err := s.repo.Save(ctx, s.store)
	s.metrics.RecordPersistence("save", err)
	if err != nil {
		return fmt.Errorf("failed to save memory store: %w", err)
	}
	s.dirty = false
	return nil
}

// WriteAndSave is the operator variant of Write: it saves straight away.
func (s *MemoryService) WriteAndSave(ctx context.Context, content, domain string, meta *models.WriteMetadata) (*models.KnowledgeDocument, error) {
	doc := s.Write(content, domain, meta)
	s.mu.Lock()
	defer s.mu.Unlock()
	return doc, s.saveLocked(ctx)
}

func (s *MemoryService) Delete(ctx context.Context, domain, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.Delete(domain, id) {
		return false, nil
	}
	s.dirty = true
	s.logger.Info("Memory document deleted", zap.String("domain", domain), zap.String("document_id", id))
	return true, s.saveLocked(ctx)
}

func (s *MemoryService) DeleteDomain(ctx context.Context, domain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.DeleteDomain(domain) {
		return false, nil
	}
	s.dirty = true
	s.logger.Info("Memory domain deleted", zap.String("domain", domain))
	return true, s.saveLocked(ctx)
}

// Import validates payload and merges it into the store, replacing any
// domain it names. Nothing is applied when validation finds a problem. It
// reports how many domains and documents were imported.
func (s *MemoryService) Import(ctx context.Context, payload []byte) (domains, documents int, err error) {
	incoming, err := s.decodeValidated(payload)
	if err != nil {
		return 0, 0, err
	}
	domains, documents = len(incoming.Domains()), incoming.Len()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Merge(incoming)
	s.dirty = true
	s.logger.Info("Memory store imported",
		zap.Int("domains", domains),
		zap.Int("documents", documents),
	)
	return domains, documents, s.saveLocked(ctx)
}

// Replace validates payload and swaps it in for the whole store. The new
// store keeps the clock of the one it replaces.
func (s *MemoryService) Replace(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming, err := s.decodeValidated(payload, memory.WithClock(s.store.Clock()))
	if err != nil {
		return err
	}
	s.store = incoming
	s.dirty = true
	s.logger.Info("Memory store replaced", zap.Int("documents", incoming.Len()))
	return s.saveLocked(ctx)
}

func (s *MemoryService) decodeValidated(payload []byte, opts ...memory.Option) (*memory.Store, error) {
	if findings := memory.Validate(payload); len(findings) > 0 {
		s.logger.Warn("Memory import rejected", zap.Int("findings", len(findings)))
		return nil, &ImportError{Findings: findings}
	}
	incoming, err := memory.Decode(payload, append(opts, memory.WithLogger(s.logger))...)
	if err != nil {
		return nil, err
	}
	return incoming, nil
}
