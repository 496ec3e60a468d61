package repository

import (
	"context"
	"database/sql"
	"fmt"

	"memchat/internal/memory"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_domains (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS memory_documents (
	domain   TEXT NOT NULL,
	doc_id   TEXT NOT NULL,
	position INTEGER NOT NULL,
	document TEXT NOT NULL,
	PRIMARY KEY (domain, doc_id)
);`

// SQLiteRepository is the single-file database backend, handy for local use
// without a Postgres server.
type SQLiteRepository struct {
	db     *sql.DB
	opts   []memory.Option
	logger *zap.Logger
}

func NewSQLiteRepository(db *sql.DB, logger *zap.Logger, opts ...memory.Option) *SQLiteRepository {
	return &SQLiteRepository{
		db:     db,
		opts:   opts,
		logger: logger,
	}
}

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create memory tables: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*memory.Store, error) {
	rows, err := squirrel.Select("name").
		From(domainsTable).
		OrderBy("position ASC").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}

	var domains []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		domains = append(domains, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = squirrel.Select("d.domain", "d.doc_id", "d.position", "d.document").
		From(documentsTable + " d").
		Join(domainsTable + " m ON m.name = d.domain").
		OrderBy("m.position ASC", "d.position ASC").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	var documents []documentRow
	for rows.Next() {
		var row documentRow
		if err := rows.Scan(&row.domain, &row.id, &row.position, &row.body); err != nil {
			return nil, err
		}
		documents = append(documents, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	store, err := assemble(memory.NewStore(r.opts...), domains, documents)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Memory store loaded from sqlite",
		zap.Int("domains", len(domains)),
		zap.Int("documents", len(documents)),
	)
	return store, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, store *memory.Store) error {
	domains, documents, err := flatten(store)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{documentsTable, domainsTable} {
		if _, err := squirrel.Delete(table).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, d := range domains {
		_, err := squirrel.Insert(domainsTable).
			Columns("name", "position").
			Values(d.name, d.position).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert domain %s: %w", d.name, err)
		}
	}

	for _, doc := range documents {
		_, err := squirrel.Insert(documentsTable).
			Columns("domain", "doc_id", "position", "document").
			Values(doc.domain, doc.id, doc.position, doc.body).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert document %s/%s: %w", doc.domain, doc.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store: %w", err)
	}
	return nil
}
