package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/crewbase/lifecycle-engine/internal/db"
	"github.com/crewbase/lifecycle-engine/internal/model"
)

// pgExecer is satisfied by both db.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot path of fact recording.
var preparedStatements = map[string]string{
	"get_current_assessment": `SELECT id, contractor_id, overall_score, overall_level, factors, assessed_at, is_current FROM risk_assessments WHERE contractor_id = $1 AND is_current`,
	"get_lifecycle_item":     `SELECT contractor_id, kind, item_type, status, completed_at, data FROM lifecycle_items WHERE contractor_id = $1 AND kind = $2 AND item_type = $3`,
	"get_current_document":   `SELECT id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at FROM documents WHERE contractor_id = $1 AND document_type = $2 AND is_current`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id               TEXT PRIMARY KEY,
	display_name     TEXT NOT NULL DEFAULT '',
	user_id          TEXT NOT NULL DEFAULT '',
	account_owner_id TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL,
	overall_level TEXT NOT NULL,
	factors       JSONB NOT NULL,
	assessed_at   TIMESTAMPTZ NOT NULL,
	is_current    BOOLEAN NOT NULL DEFAULT true
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_one_current
	ON risk_assessments(contractor_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_assessments_contractor
	ON risk_assessments(contractor_id, assessed_at DESC);

CREATE TABLE IF NOT EXISTS lifecycle_items (
	contractor_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	item_type     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	completed_at  TIMESTAMPTZ,
	data          JSONB,
	PRIMARY KEY (contractor_id, kind, item_type)
);

CREATE INDEX IF NOT EXISTS idx_items_contractor_kind
	ON lifecycle_items(contractor_id, kind);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	is_current    BOOLEAN NOT NULL DEFAULT true,
	version       INTEGER NOT NULL,
	expires_at    TIMESTAMPTZ,
	size_bytes    BIGINT NOT NULL DEFAULT 0,
	mime_type     TEXT NOT NULL DEFAULT '',
	uploaded_at   TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_one_current
	ON documents(contractor_id, document_type) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_documents_expiry
	ON documents(expires_at) WHERE is_current;

CREATE TABLE IF NOT EXISTS notifications (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	type          TEXT NOT NULL,
	payload       JSONB,
	caused_by     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (contractor_id, type, caused_by)
);

CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications(user_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertContractor(ctx context.Context, c model.Contractor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contractors (id, display_name, user_id, account_owner_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET display_name = $2, user_id = $3, account_owner_id = $4`,
		c.ID, c.DisplayName, c.UserID, c.AccountOwnerID, c.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert contractor %s", c.ID)
}

func (s *PostgresStore) GetContractor(ctx context.Context, id string) (*model.Contractor, error) {
	var c model.Contractor
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, user_id, account_owner_id, created_at FROM contractors WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.DisplayName, &c.UserID, &c.AccountOwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contractor %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetCurrentAssessment(ctx context.Context, contractorID string) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	var factorsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, contractor_id, overall_score, overall_level, factors, assessed_at, is_current FROM risk_assessments WHERE contractor_id = $1 AND is_current`,
		contractorID,
	).Scan(&a.ID, &a.ContractorID, &a.OverallScore, &a.OverallLevel, &factorsJSON, &a.AssessedAt, &a.IsCurrent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get current assessment %s", contractorID)
	}
	if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal factors")
	}
	return &a, nil
}

// AppendAssessment supersedes the prior current assessment, inserts the new
// one, and stores the emitted events in a single transaction.
func (s *PostgresStore) AppendAssessment(ctx context.Context, a *model.RiskAssessment, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal factors")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin append assessment")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE risk_assessments SET is_current = false WHERE contractor_id = $1 AND is_current`,
		a.ContractorID,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: supersede assessment %s", a.ContractorID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO risk_assessments (id, contractor_id, overall_score, overall_level, factors, assessed_at, is_current)
		 VALUES ($1, $2, $3, $4, $5, $6, true)`,
		a.ID, a.ContractorID, a.OverallScore, string(a.OverallLevel), factorsJSON, a.AssessedAt.UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert assessment %s", a.ID)
	}

	stored, err := pgInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(ctx), "postgres: commit append assessment")
}

func (s *PostgresStore) GetLifecycleItem(ctx context.Context, contractorID string, kind model.ItemKind, itemType string) (*model.LifecycleItem, error) {
	var it model.LifecycleItem
	var dataJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT contractor_id, kind, item_type, status, completed_at, data FROM lifecycle_items WHERE contractor_id = $1 AND kind = $2 AND item_type = $3`,
		contractorID, string(kind), itemType,
	).Scan(&it.ContractorID, &it.Kind, &it.ItemType, &it.Status, &it.CompletedAt, &dataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lifecycle item %s/%s/%s", contractorID, kind, itemType)
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &it.Data); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal item data")
		}
	}
	return &it, nil
}

func (s *PostgresStore) ListLifecycleItems(ctx context.Context, contractorID string, kind model.ItemKind) ([]model.LifecycleItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contractor_id, kind, item_type, status, completed_at, data FROM lifecycle_items WHERE contractor_id = $1 AND kind = $2 ORDER BY item_type`,
		contractorID, string(kind),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list lifecycle items %s/%s", contractorID, kind)
	}
	defer rows.Close()

	var items []model.LifecycleItem
	for rows.Next() {
		var it model.LifecycleItem
		var dataJSON []byte
		if err := rows.Scan(&it.ContractorID, &it.Kind, &it.ItemType, &it.Status, &it.CompletedAt, &dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lifecycle item")
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &it.Data); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal item data")
			}
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate lifecycle items")
}

func pgUpsertItem(ctx context.Context, ex pgExecer, item model.LifecycleItem) error {
	var dataJSON []byte
	if item.Data != nil {
		var err error
		dataJSON, err = json.Marshal(item.Data)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal item data")
		}
	}

	_, err := ex.Exec(ctx,
		`INSERT INTO lifecycle_items (contractor_id, kind, item_type, status, completed_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (contractor_id, kind, item_type) DO UPDATE SET status = $4, completed_at = $5, data = $6`,
		item.ContractorID, string(item.Kind), item.ItemType, string(item.Status), item.CompletedAt, dataJSON,
	)
	return eris.Wrapf(err, "postgres: upsert lifecycle item %s/%s/%s", item.ContractorID, item.Kind, item.ItemType)
}

func (s *PostgresStore) UpsertLifecycleItem(ctx context.Context, item model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	if len(events) == 0 {
		return nil, pgUpsertItem(ctx, s.pool, item)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin upsert item")
	}
	defer tx.Rollback(ctx)

	if err := pgUpsertItem(ctx, tx, item); err != nil {
		return nil, err
	}
	stored, err := pgInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert item")
}

func (s *PostgresStore) SeedLifecycleItems(ctx context.Context, items []model.LifecycleItem, events []model.NotificationEvent) (int64, []model.NotificationEvent, error) {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{it.ContractorID, string(it.Kind), it.ItemType, string(it.Status)})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: begin seed")
	}
	defer tx.Rollback(ctx)

	n, err := db.InsertMissing(ctx, tx, db.SeedConfig{
		Table:        "lifecycle_items",
		Columns:      []string{"contractor_id", "kind", "item_type", "status"},
		ConflictKeys: []string{"contractor_id", "kind", "item_type"},
	}, rows)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: seed lifecycle items")
	}

	stored, err := pgInsertNotifications(ctx, tx, events)
	if err != nil {
		return 0, nil, err
	}

	return n, stored, eris.Wrap(tx.Commit(ctx), "postgres: commit seed")
}

func (s *PostgresStore) GetCurrentDocument(ctx context.Context, contractorID, documentType string) (*model.DocumentRecord, error) {
	var d model.DocumentRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at FROM documents WHERE contractor_id = $1 AND document_type = $2 AND is_current`,
		contractorID, documentType,
	).Scan(&d.ID, &d.ContractorID, &d.DocumentType, &d.IsCurrent, &d.Version, &d.ExpiresAt, &d.SizeBytes, &d.MimeType, &d.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get current document %s/%s", contractorID, documentType)
	}
	return &d, nil
}

func (s *PostgresStore) ListCurrentDocuments(ctx context.Context, contractorID string) ([]model.DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at FROM documents WHERE contractor_id = $1 AND is_current ORDER BY document_type`,
		contractorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list current documents %s", contractorID)
	}
	defer rows.Close()

	var docs []model.DocumentRecord
	for rows.Next() {
		var d model.DocumentRecord
		if err := rows.Scan(&d.ID, &d.ContractorID, &d.DocumentType, &d.IsCurrent, &d.Version, &d.ExpiresAt, &d.SizeBytes, &d.MimeType, &d.UploadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

// RolloverDocument flips the prior current record for the document type,
// inserts the new version, upserts the matching lifecycle slot, and stores
// the emitted events in a single transaction.
func (s *PostgresStore) RolloverDocument(ctx context.Context, rec *model.DocumentRecord, slot *model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin rollover")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET is_current = false WHERE contractor_id = $1 AND document_type = $2 AND is_current`,
		rec.ContractorID, rec.DocumentType,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: supersede document %s/%s", rec.ContractorID, rec.DocumentType)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at)
		 VALUES ($1, $2, $3, true, $4, $5, $6, $7, $8)`,
		rec.ID, rec.ContractorID, rec.DocumentType, rec.Version, rec.ExpiresAt, rec.SizeBytes, rec.MimeType, rec.UploadedAt.UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert document %s", rec.ID)
	}

	if slot != nil {
		if err := pgUpsertItem(ctx, tx, *slot); err != nil {
			return nil, err
		}
	}
	stored, err := pgInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(ctx), "postgres: commit rollover")
}

func (s *PostgresStore) AppendNotifications(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	return pgInsertNotifications(ctx, s.pool, events)
}

func pgInsertNotifications(ctx context.Context, ex pgExecer, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	var stored []model.NotificationEvent
	for _, ev := range events {
		var payloadJSON []byte
		if ev.Payload != nil {
			var err error
			payloadJSON, err = json.Marshal(ev.Payload)
			if err != nil {
				return stored, eris.Wrap(err, "postgres: marshal payload")
			}
		}
		tag, err := ex.Exec(ctx,
			`INSERT INTO notifications (id, contractor_id, user_id, type, payload, caused_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (contractor_id, type, caused_by) DO NOTHING`,
			ev.ID, ev.ContractorID, ev.UserID, string(ev.Type), payloadJSON, ev.CausedBy, ev.CreatedAt.UTC(),
		)
		if err != nil {
			return stored, eris.Wrapf(err, "postgres: insert notification %s", ev.ID)
		}
		if tag.RowsAffected() > 0 {
			stored = append(stored, ev)
		}
	}
	return stored, nil
}
