package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	email      TEXT,
	phone      TEXT,
	address    TEXT,
	quote      TEXT,
	ts         INTEGER NOT NULL,
	honeypot   TEXT,
	ttc_ms     INTEGER,
	spam       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	lead_id    TEXT PRIMARY KEY,
	blob       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS meter_positions (
	lead_id    TEXT PRIMARY KEY,
	lng        REAL NOT NULL,
	lat        REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lead_queue (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	entries    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveLead(ctx context.Context, lead model.Lead) (bool, error) {
	quoteJSON, err := marshalQuote(lead.Quote)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal quote")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		lead.ID, string(lead.Stage), lead.Email, lead.Phone, lead.Address,
		quoteJSON, lead.TS, lead.Honeypot, lead.TTCMs, boolToInt(lead.Spam), time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert lead %s", lead.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 0, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam FROM leads WHERE id = ?`,
		id,
	)
	return scanLead(row)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam FROM leads WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if !filter.IncludeSpam {
		query += ` AND spam = 0`
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) CountLeads(ctx context.Context, since time.Time) (model.LeadCounts, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(spam), 0) FROM leads`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at > ?`
		args = append(args, since.UTC())
	}

	var counts model.LeadCounts
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&counts.Total, &counts.Spam)
	if err != nil {
		return model.LeadCounts{}, eris.Wrap(err, "sqlite: count leads")
	}
	return counts, nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *model.QuoteSession) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (lead_id, blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(lead_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		sess.LeadID, string(blob), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put session %s", sess.LeadID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, leadID string) (*model.QuoteSession, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM sessions WHERE lead_id = ?`, leadID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", leadID)
	}

	var sess model.QuoteSession
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}

func (s *SQLiteStore) PutMeterPosition(ctx context.Context, leadID string, pos *model.GeoPosition) error {
	if pos == nil {
		_, err := s.db.ExecContext(ctx, `DELETE FROM meter_positions WHERE lead_id = ?`, leadID)
		return eris.Wrapf(err, "sqlite: clear meter position %s", leadID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meter_positions (lead_id, lng, lat, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(lead_id) DO UPDATE SET lng = excluded.lng, lat = excluded.lat, updated_at = excluded.updated_at`,
		leadID, pos.Lng, pos.Lat, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put meter position %s", leadID)
}

func (s *SQLiteStore) GetMeterPosition(ctx context.Context, leadID string) (*model.GeoPosition, error) {
	var pos model.GeoPosition
	err := s.db.QueryRowContext(ctx,
		`SELECT lng, lat FROM meter_positions WHERE lead_id = ?`, leadID,
	).Scan(&pos.Lng, &pos.Lat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get meter position %s", leadID)
	}
	return &pos, nil
}

func (s *SQLiteStore) LoadQueue(ctx context.Context) ([]model.QueuedLead, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT entries FROM lead_queue WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load queue")
	}

	var entries []model.QueuedLead
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal queue")
	}
	return entries, nil
}

func (s *SQLiteStore) SaveQueue(ctx context.Context, entries []model.QueuedLead) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal queue")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_queue (id, entries, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET entries = excluded.entries, updated_at = excluded.updated_at`,
		string(blob), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save queue")
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalQuote(q *model.QuoteSummary) (sql.NullString, error) {
	if q == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var stage string
	var email, phone, address, honeypot sql.NullString
	var quoteJSON sql.NullString
	var ttcMs sql.NullInt64
	var spam int

	err := row.Scan(&l.ID, &stage, &email, &phone, &address, &quoteJSON, &l.TS, &honeypot, &ttcMs, &spam)
	if err == sql.ErrNoRows {
		return nil, eris.New("lead not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan lead")
	}

	l.Stage = model.LeadStage(stage)
	l.Email = email.String
	l.Phone = phone.String
	l.Address = address.String
	l.Honeypot = honeypot.String
	l.TTCMs = ttcMs.Int64
	l.Spam = spam != 0
	if quoteJSON.Valid {
		l.Quote = &model.QuoteSummary{}
		if err := json.Unmarshal([]byte(quoteJSON.String), l.Quote); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal quote")
		}
	}
	return &l, nil
}
