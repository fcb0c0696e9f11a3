package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on pgx.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgres connects to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	email      TEXT,
	phone      TEXT,
	address    TEXT,
	quote      JSONB,
	ts         BIGINT NOT NULL,
	honeypot   TEXT,
	ttc_ms     BIGINT,
	spam       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	lead_id    TEXT PRIMARY KEY,
	blob       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meter_positions (
	lead_id    TEXT PRIMARY KEY,
	lng        DOUBLE PRECISION NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_queue (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	entries    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveLead(ctx context.Context, lead model.Lead) (bool, error) {
	var quoteJSON any
	if lead.Quote != nil {
		b, err := json.Marshal(lead.Quote)
		if err != nil {
			return false, eris.Wrap(err, "postgres: marshal quote")
		}
		quoteJSON = string(b)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		lead.ID, string(lead.Stage), lead.Email, lead.Phone, lead.Address,
		quoteJSON, lead.TS, lead.Honeypot, lead.TTCMs, lead.Spam,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert lead %s", lead.ID)
	}
	return tag.RowsAffected() == 0, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam FROM leads WHERE id = $1`,
		id,
	)
	return scanPgLead(row)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, stage, email, phone, address, quote, ts, honeypot, ttc_ms, spam FROM leads WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Stage != "" {
		query += ` AND stage = ` + arg(string(filter.Stage))
	}
	if !filter.IncludeSpam {
		query += ` AND NOT spam`
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ` + arg(filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) CountLeads(ctx context.Context, since time.Time) (model.LeadCounts, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE spam) FROM leads`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at > $1`
		args = append(args, since.UTC())
	}

	var counts model.LeadCounts
	err := s.pool.QueryRow(ctx, query, args...).Scan(&counts.Total, &counts.Spam)
	if err != nil {
		return model.LeadCounts{}, eris.Wrap(err, "postgres: count leads")
	}
	return counts, nil
}

func (s *PostgresStore) PutSession(ctx context.Context, sess *model.QuoteSession) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (lead_id, blob, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (lead_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`,
		sess.LeadID, string(blob),
	)
	return eris.Wrapf(err, "postgres: put session %s", sess.LeadID)
}

func (s *PostgresStore) GetSession(ctx context.Context, leadID string) (*model.QuoteSession, error) {
	var blob string
	err := s.pool.QueryRow(ctx,
		`SELECT blob FROM sessions WHERE lead_id = $1`, leadID,
	).Scan(&blob)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", leadID)
	}

	var sess model.QuoteSession
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}

func (s *PostgresStore) PutMeterPosition(ctx context.Context, leadID string, pos *model.GeoPosition) error {
	if pos == nil {
		_, err := s.pool.Exec(ctx, `DELETE FROM meter_positions WHERE lead_id = $1`, leadID)
		return eris.Wrapf(err, "postgres: clear meter position %s", leadID)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meter_positions (lead_id, lng, lat, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (lead_id) DO UPDATE SET lng = EXCLUDED.lng, lat = EXCLUDED.lat, updated_at = now()`,
		leadID, pos.Lng, pos.Lat,
	)
	return eris.Wrapf(err, "postgres: put meter position %s", leadID)
}

func (s *PostgresStore) GetMeterPosition(ctx context.Context, leadID string) (*model.GeoPosition, error) {
	var pos model.GeoPosition
	err := s.pool.QueryRow(ctx,
		`SELECT lng, lat FROM meter_positions WHERE lead_id = $1`, leadID,
	).Scan(&pos.Lng, &pos.Lat)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get meter position %s", leadID)
	}
	return &pos, nil
}

func (s *PostgresStore) LoadQueue(ctx context.Context) ([]model.QueuedLead, error) {
	var blob string
	err := s.pool.QueryRow(ctx, `SELECT entries FROM lead_queue WHERE id = 1`).Scan(&blob)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load queue")
	}

	var entries []model.QueuedLead
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal queue")
	}
	return entries, nil
}

func (s *PostgresStore) SaveQueue(ctx context.Context, entries []model.QueuedLead) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal queue")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_queue (id, entries, updated_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET entries = EXCLUDED.entries, updated_at = now()`,
		string(blob),
	)
	return eris.Wrap(err, "postgres: save queue")
}

// helpers

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var stage string
	var email, phone, address, honeypot *string
	var quoteJSON *string
	var ttcMs *int64

	err := row.Scan(&l.ID, &stage, &email, &phone, &address, &quoteJSON, &l.TS, &honeypot, &ttcMs, &l.Spam)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("lead not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	l.Stage = model.LeadStage(stage)
	l.Email = deref(email)
	l.Phone = deref(phone)
	l.Address = deref(address)
	l.Honeypot = deref(honeypot)
	if ttcMs != nil {
		l.TTCMs = *ttcMs
	}
	if quoteJSON != nil {
		l.Quote = &model.QuoteSummary{}
		if err := json.Unmarshal([]byte(*quoteJSON), l.Quote); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal quote")
		}
	}
	return &l, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
