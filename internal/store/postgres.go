// Package store keeps the history of sent reports in PostgreSQL. The
// latest stored creative per ad backs the "creative" button.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate report run")
)

// Run is one sent report.
type Run struct {
	ID         string    `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	Since      time.Time `db:"since" json:"since"`
	Until      time.Time `db:"until" json:"until"`
	Commentary string    `db:"commentary" json:"commentary"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
	Entries    []Entry   `db:"-" json:"entries,omitempty"`
}

// Entry is one ranked ad inside a run.
type Entry struct {
	Rank             int     `db:"rank" json:"rank"`
	AdID             string  `db:"ad_id" json:"ad_id"`
	AdName           string  `db:"ad_name" json:"ad_name"`
	Spend            float64 `db:"spend" json:"spend"`
	Purchases        int64   `db:"purchases" json:"purchases"`
	Revenue          float64 `db:"revenue" json:"revenue"`
	ROAS             float64 `db:"roas" json:"roas"`
	CreativeKind     string  `db:"creative_kind" json:"creative_kind"`
	CreativeID       string  `db:"creative_id" json:"creative_id"`
	VideoID          string  `db:"video_id" json:"video_id"`
	ImageURL         string  `db:"image_url" json:"image_url"`
	ThumbnailURL     string  `db:"thumbnail_url" json:"thumbnail_url"`
	InstagramMediaID string  `db:"instagram_media_id" json:"instagram_media_id"`
}

// EntriesFrom converts ranked ads into entries, rank starting at 1.
func EntriesFrom(top []performance.RankedAd) []Entry {
	entries := make([]Entry, 0, len(top))
	for i, ad := range top {
		entries = append(entries, Entry{
			Rank:             i + 1,
			AdID:             ad.ID,
			AdName:           ad.Name,
			Spend:            ad.Metrics.Spend,
			Purchases:        ad.Metrics.Purchases,
			Revenue:          ad.Metrics.Revenue,
			ROAS:             ad.Metrics.ROAS,
			CreativeKind:     ad.Creative.Kind,
			CreativeID:       ad.Creative.ID,
			VideoID:          ad.Creative.VideoID,
			ImageURL:         ad.Creative.ImageURL,
			ThumbnailURL:     ad.Creative.ThumbnailURL,
			InstagramMediaID: ad.Creative.InstagramMediaID,
		})
	}
	return entries
}

type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, DefaultTimeout), nil
}

func New(db *sqlx.DB, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Postgres{db: db, timeout: timeout}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	id         UUID PRIMARY KEY,
	account_id TEXT NOT NULL,
	since      DATE NOT NULL,
	until      DATE NOT NULL,
	commentary TEXT NOT NULL DEFAULT '',
	sent_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS report_entries (
	run_id             UUID NOT NULL REFERENCES report_runs(id) ON DELETE CASCADE,
	rank               INTEGER NOT NULL,
	ad_id              TEXT NOT NULL,
	ad_name            TEXT NOT NULL,
	spend              DOUBLE PRECISION NOT NULL,
	purchases          BIGINT NOT NULL,
	revenue            DOUBLE PRECISION NOT NULL,
	roas               DOUBLE PRECISION NOT NULL,
	creative_kind      TEXT NOT NULL,
	creative_id        TEXT NOT NULL DEFAULT '',
	video_id           TEXT NOT NULL DEFAULT '',
	image_url          TEXT NOT NULL DEFAULT '',
	thumbnail_url      TEXT NOT NULL DEFAULT '',
	instagram_media_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, rank)
);
CREATE INDEX IF NOT EXISTS report_entries_ad_id_idx ON report_entries (ad_id);
CREATE INDEX IF NOT EXISTS report_runs_account_sent_idx ON report_runs (account_id, sent_at DESC);
`

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate report schema: %w", err)
	}
	return nil
}

// SaveRun stores the run and its entries in one transaction.
func (p *Postgres) SaveRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("report run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO report_runs (id, account_id, since, until, commentary, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.AccountID, run.Since, run.Until, run.Commentary, run.SentAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, run.ID)
		}
		return fmt.Errorf("insert report run: %w", err)
	}

	for _, entry := range run.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO report_entries (run_id, rank, ad_id, ad_name, spend, purchases, revenue, roas,
				creative_kind, creative_id, video_id, image_url, thumbnail_url, instagram_media_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			run.ID, entry.Rank, entry.AdID, entry.AdName, entry.Spend, entry.Purchases, entry.Revenue, entry.ROAS,
			entry.CreativeKind, entry.CreativeID, entry.VideoID, entry.ImageURL, entry.ThumbnailURL, entry.InstagramMediaID)
		if err != nil {
			return fmt.Errorf("insert report entry %d: %w", entry.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report run: %w", err)
	}
	return nil
}

// LatestCreative returns the creative stored with the ad's most recent
// report entry.
func (p *Postgres) LatestCreative(ctx context.Context, adID string) (performance.Creative, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var entry Entry
	err := p.db.GetContext(ctx, &entry, `
		SELECT e.rank, e.ad_id, e.ad_name, e.spend, e.purchases, e.revenue, e.roas,
			e.creative_kind, e.creative_id, e.video_id, e.image_url, e.thumbnail_url, e.instagram_media_id
		FROM report_entries e
		JOIN report_runs r ON r.id = e.run_id
		WHERE e.ad_id = $1
		ORDER BY r.sent_at DESC
		LIMIT 1`, adID)
	if errors.Is(err, sql.ErrNoRows) {
		return performance.Creative{}, fmt.Errorf("creative for ad %s: %w", adID, ErrNotFound)
	}
	if err != nil {
		return performance.Creative{}, fmt.Errorf("query creative for ad %s: %w", adID, err)
	}
	return performance.Creative{
		Kind:             entry.CreativeKind,
		ID:               entry.CreativeID,
		VideoID:          entry.VideoID,
		ImageURL:         entry.ImageURL,
		ThumbnailURL:     entry.ThumbnailURL,
		InstagramMediaID: entry.InstagramMediaID,
	}, nil
}

// Runs lists the account's most recent runs without entries, newest first.
func (p *Postgres) Runs(ctx context.Context, accountID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	runs := []Run{}
	err := p.db.SelectContext(ctx, &runs, `
		SELECT id, account_id, since, until, commentary, sent_at
		FROM report_runs
		WHERE account_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list report runs for act_%s: %w", accountID, err)
	}
	return runs, nil
}
