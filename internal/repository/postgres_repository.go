package repository

import (
	"context"
	"fmt"

	"memchat/internal/memory"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memory_domains (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS memory_documents (
	domain   TEXT NOT NULL REFERENCES memory_domains(name) ON DELETE CASCADE,
	doc_id   TEXT NOT NULL,
	position INTEGER NOT NULL,
	document JSONB NOT NULL,
	PRIMARY KEY (domain, doc_id)
);`

// PostgresRepository stores one row per document. Save replaces every row
// inside a single transaction.
type PostgresRepository struct {
	db     *pgxpool.Pool
	opts   []memory.Option
	logger *zap.Logger
}

func NewPostgresRepository(db *pgxpool.Pool, logger *zap.Logger, opts ...memory.Option) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		opts:   opts,
		logger: logger,
	}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create memory tables: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context) (*memory.Store, error) {
	domainQuery := squirrel.Select("name").
		From(domainsTable).
		OrderBy("position ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := domainQuery.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	domains, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan domains: %w", err)
	}

	docQuery := squirrel.Select("d.domain", "d.doc_id", "d.position", "d.document::text").
		From(documentsTable + " d").
		Join(domainsTable + " m ON m.name = d.domain").
		OrderBy("m.position ASC", "d.position ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err = docQuery.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, sql, args...)
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

	r.logger.Info("Memory store loaded from postgres",
		zap.Int("domains", len(domains)),
		zap.Int("documents", len(documents)),
	)
	return store, nil
}

func (r *PostgresRepository) Save(ctx context.Context, store *memory.Store) error {
	domains, documents, err := flatten(store)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+domainsTable); err != nil {
		return fmt.Errorf("failed to clear domains: %w", err)
	}

	if len(domains) > 0 {
		insert := squirrel.Insert(domainsTable).
			Columns("name", "position").
			PlaceholderFormat(squirrel.Dollar)
		for _, d := range domains {
			insert = insert.Values(d.name, d.position)
		}
		sql, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert domains: %w", err)
		}
	}

	for _, doc := range documents {
		sql, args, err := squirrel.Insert(documentsTable).
			Columns("domain", "doc_id", "position", "document").
			Values(doc.domain, doc.id, doc.position, squirrel.Expr("?::jsonb", doc.body)).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert document %s/%s: %w", doc.domain, doc.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit store: %w", err)
	}
	return nil
}
