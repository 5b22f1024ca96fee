package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore implements Store using modernc.org/sqlite. Suited to local and
// single-tenant deployments; the postgres store is the production backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contractors (
	id               TEXT PRIMARY KEY,
	display_name     TEXT NOT NULL DEFAULT '',
	user_id          TEXT NOT NULL DEFAULT '',
	account_owner_id TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	overall_score REAL NOT NULL,
	overall_level TEXT NOT NULL,
	factors       TEXT NOT NULL,
	assessed_at   DATETIME NOT NULL,
	is_current    INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_one_current
	ON risk_assessments(contractor_id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_assessments_contractor
	ON risk_assessments(contractor_id, assessed_at DESC);

CREATE TABLE IF NOT EXISTS lifecycle_items (
	contractor_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	item_type     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	completed_at  DATETIME,
	data          TEXT,
	PRIMARY KEY (contractor_id, kind, item_type)
);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	is_current    INTEGER NOT NULL DEFAULT 1,
	version       INTEGER NOT NULL,
	expires_at    DATETIME,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	mime_type     TEXT NOT NULL DEFAULT '',
	uploaded_at   DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_one_current
	ON documents(contractor_id, document_type) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS notifications (
	id            TEXT PRIMARY KEY,
	contractor_id TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	type          TEXT NOT NULL,
	payload       TEXT,
	caused_by     TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	UNIQUE (contractor_id, type, caused_by)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertContractor(ctx context.Context, c model.Contractor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contractors (id, display_name, user_id, account_owner_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, user_id = excluded.user_id, account_owner_id = excluded.account_owner_id`,
		c.ID, c.DisplayName, c.UserID, c.AccountOwnerID, c.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert contractor %s", c.ID)
}

func (s *SQLiteStore) GetContractor(ctx context.Context, id string) (*model.Contractor, error) {
	var c model.Contractor
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, user_id, account_owner_id, created_at FROM contractors WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.DisplayName, &c.UserID, &c.AccountOwnerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contractor %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) GetCurrentAssessment(ctx context.Context, contractorID string) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	var factorsJSON []byte
	var isCurrent int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, contractor_id, overall_score, overall_level, factors, assessed_at, is_current FROM risk_assessments WHERE contractor_id = ? AND is_current = 1`,
		contractorID,
	).Scan(&a.ID, &a.ContractorID, &a.OverallScore, &a.OverallLevel, &factorsJSON, &a.AssessedAt, &isCurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get current assessment %s", contractorID)
	}
	a.IsCurrent = isCurrent == 1
	if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal factors")
	}
	return &a, nil
}

func (s *SQLiteStore) AppendAssessment(ctx context.Context, a *model.RiskAssessment, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal factors")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin append assessment")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE risk_assessments SET is_current = 0 WHERE contractor_id = ? AND is_current = 1`,
		a.ContractorID,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: supersede assessment %s", a.ContractorID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO risk_assessments (id, contractor_id, overall_score, overall_level, factors, assessed_at, is_current)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		a.ID, a.ContractorID, a.OverallScore, string(a.OverallLevel), factorsJSON, a.AssessedAt.UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert assessment %s", a.ID)
	}

	stored, err := sqliteInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(), "sqlite: commit append assessment")
}

func (s *SQLiteStore) GetLifecycleItem(ctx context.Context, contractorID string, kind model.ItemKind, itemType string) (*model.LifecycleItem, error) {
	var it model.LifecycleItem
	var dataJSON []byte
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT contractor_id, kind, item_type, status, completed_at, data FROM lifecycle_items WHERE contractor_id = ? AND kind = ? AND item_type = ?`,
		contractorID, string(kind), itemType,
	).Scan(&it.ContractorID, &it.Kind, &it.ItemType, &it.Status, &completedAt, &dataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lifecycle item %s/%s/%s", contractorID, kind, itemType)
	}
	if completedAt.Valid {
		t := completedAt.Time
		it.CompletedAt = &t
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &it.Data); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal item data")
		}
	}
	return &it, nil
}

func (s *SQLiteStore) ListLifecycleItems(ctx context.Context, contractorID string, kind model.ItemKind) ([]model.LifecycleItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contractor_id, kind, item_type, status, completed_at, data FROM lifecycle_items WHERE contractor_id = ? AND kind = ? ORDER BY item_type`,
		contractorID, string(kind),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list lifecycle items %s/%s", contractorID, kind)
	}
	defer rows.Close()

	var items []model.LifecycleItem
	for rows.Next() {
		var it model.LifecycleItem
		var dataJSON []byte
		var completedAt sql.NullTime
		if err := rows.Scan(&it.ContractorID, &it.Kind, &it.ItemType, &it.Status, &completedAt, &dataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lifecycle item")
		}
		if completedAt.Valid {
			t := completedAt.Time
			it.CompletedAt = &t
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &it.Data); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal item data")
			}
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate lifecycle items")
}

func sqliteUpsertItem(ctx context.Context, ex sqlExecer, item model.LifecycleItem) error {
	var dataJSON []byte
	if item.Data != nil {
		var err error
		dataJSON, err = json.Marshal(item.Data)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal item data")
		}
	}

	var completedAt any
	if item.CompletedAt != nil {
		completedAt = item.CompletedAt.UTC()
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO lifecycle_items (contractor_id, kind, item_type, status, completed_at, data)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contractor_id, kind, item_type) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at, data = excluded.data`,
		item.ContractorID, string(item.Kind), item.ItemType, string(item.Status), completedAt, dataJSON,
	)
	return eris.Wrapf(err, "sqlite: upsert lifecycle item %s/%s/%s", item.ContractorID, item.Kind, item.ItemType)
}

func (s *SQLiteStore) UpsertLifecycleItem(ctx context.Context, item model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	if len(events) == 0 {
		return nil, sqliteUpsertItem(ctx, s.db, item)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert item")
	}
	defer tx.Rollback()

	if err := sqliteUpsertItem(ctx, tx, item); err != nil {
		return nil, err
	}
	stored, err := sqliteInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(), "sqlite: commit upsert item")
}

func (s *SQLiteStore) SeedLifecycleItems(ctx context.Context, items []model.LifecycleItem, events []model.NotificationEvent) (int64, []model.NotificationEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback()

	var inserted int64
	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lifecycle_items (contractor_id, kind, item_type, status)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (contractor_id, kind, item_type) DO NOTHING`,
			it.ContractorID, string(it.Kind), it.ItemType, string(it.Status),
		)
		if err != nil {
			return 0, nil, eris.Wrapf(err, "sqlite: seed item %s/%s/%s", it.ContractorID, it.Kind, it.ItemType)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	stored, err := sqliteInsertNotifications(ctx, tx, events)
	if err != nil {
		return 0, nil, err
	}

	return inserted, stored, eris.Wrap(tx.Commit(), "sqlite: commit seed")
}

func (s *SQLiteStore) GetCurrentDocument(ctx context.Context, contractorID, documentType string) (*model.DocumentRecord, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at FROM documents WHERE contractor_id = ? AND document_type = ? AND is_current = 1`,
		contractorID, documentType,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get current document %s/%s", contractorID, documentType)
	}
	return d, nil
}

func (s *SQLiteStore) ListCurrentDocuments(ctx context.Context, contractorID string) ([]model.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at FROM documents WHERE contractor_id = ? AND is_current = 1 ORDER BY document_type`,
		contractorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list current documents %s", contractorID)
	}
	defer rows.Close()

	var docs []model.DocumentRecord
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLiteStore) RolloverDocument(ctx context.Context, rec *model.DocumentRecord, slot *model.LifecycleItem, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin rollover")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET is_current = 0 WHERE contractor_id = ? AND document_type = ? AND is_current = 1`,
		rec.ContractorID, rec.DocumentType,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: supersede document %s/%s", rec.ContractorID, rec.DocumentType)
	}

	var expiresAt any
	if rec.ExpiresAt != nil {
		expiresAt = rec.ExpiresAt.UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, contractor_id, document_type, is_current, version, expires_at, size_bytes, mime_type, uploaded_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ContractorID, rec.DocumentType, rec.Version, expiresAt, rec.SizeBytes, rec.MimeType, rec.UploadedAt.UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert document %s", rec.ID)
	}

	if slot != nil {
		if err := sqliteUpsertItem(ctx, tx, *slot); err != nil {
			return nil, err
		}
	}
	stored, err := sqliteInsertNotifications(ctx, tx, events)
	if err != nil {
		return nil, err
	}

	return stored, eris.Wrap(tx.Commit(), "sqlite: commit rollover")
}

func (s *SQLiteStore) AppendNotifications(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	return sqliteInsertNotifications(ctx, s.db, events)
}

func sqliteInsertNotifications(ctx context.Context, ex sqlExecer, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	var stored []model.NotificationEvent
	for _, ev := range events {
		var payloadJSON []byte
		if ev.Payload != nil {
			var err error
			payloadJSON, err = json.Marshal(ev.Payload)
			if err != nil {
				return stored, eris.Wrap(err, "sqlite: marshal payload")
			}
		}
		res, err := ex.ExecContext(ctx,
			`INSERT INTO notifications (id, contractor_id, user_id, type, payload, caused_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (contractor_id, type, caused_by) DO NOTHING`,
			ev.ID, ev.ContractorID, ev.UserID, string(ev.Type), payloadJSON, ev.CausedBy, ev.CreatedAt.UTC(),
		)
		if err != nil {
			return stored, eris.Wrapf(err, "sqlite: insert notification %s", ev.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored = append(stored, ev)
		}
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.DocumentRecord, error) {
	var d model.DocumentRecord
	var isCurrent int
	var expiresAt sql.NullTime
	if err := row.Scan(&d.ID, &d.ContractorID, &d.DocumentType, &isCurrent, &d.Version, &expiresAt, &d.SizeBytes, &d.MimeType, &d.UploadedAt); err != nil {
		return nil, err
	}
	d.IsCurrent = isCurrent == 1
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	return &d, nil
}
