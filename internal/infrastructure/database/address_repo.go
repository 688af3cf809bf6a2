package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
)

// Schema creates the registry tables
const Schema = `
CREATE TABLE IF NOT EXISTS watched_addresses (
	id             BIGSERIAL PRIMARY KEY,
	address        TEXT NOT NULL UNIQUE,
	nickname       TEXT NOT NULL DEFAULT '',
	lookback_hours INTEGER,
	report_balance BOOLEAN NOT NULL DEFAULT TRUE,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notification_destinations (
	id         BIGSERIAL PRIMARY KEY,
	address    TEXT NOT NULL REFERENCES watched_addresses (address) ON DELETE CASCADE,
	channel_id TEXT NOT NULL,
	topic_id   BIGINT,
	UNIQUE (address, channel_id, topic_id)
);
`

// Ensure AddressRepo implements AddressRegistry
var _ repositories.AddressRegistry = (*AddressRepo)(nil)

// AddressRepo implements AddressRegistry using PostgreSQL
type AddressRepo struct {
	db              *sqlx.DB
	defaultLookback int
}

// NewAddressRepo creates a new address registry. Rows without a lookback use defaultLookback.
func NewAddressRepo(db *sqlx.DB, defaultLookback int) *AddressRepo {
	return &AddressRepo{db: db, defaultLookback: defaultLookback}
}

// Migrate creates the registry tables if they do not exist
func (r *AddressRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create registry schema: %w", err)
	}
	return nil
}

type destinationRow struct {
	Address string `db:"address"`
	entities.Destination
}

// LoadWatched returns every active watched address with its destinations
func (r *AddressRepo) LoadWatched(ctx context.Context) ([]entities.WatchedAddress, error) {
	var watched []entities.WatchedAddress
	query := `
		SELECT address, nickname, COALESCE(lookback_hours, $1) AS lookback_hours, report_balance
		FROM watched_addresses
		WHERE active
		ORDER BY id
	`

	if err := r.db.SelectContext(ctx, &watched, query, r.defaultLookback); err != nil {
		return nil, fmt.Errorf("failed to get watched addresses: %w", err)
	}

	var rows []destinationRow
	query = `
		SELECT d.address, d.channel_id, d.topic_id
		FROM notification_destinations d
		JOIN watched_addresses w ON w.address = d.address
		WHERE w.active
		ORDER BY d.id
	`

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get notification destinations: %w", err)
	}

	index := make(map[string]int, len(watched))
	for i, w := range watched {
		index[w.Address] = i
	}
	for _, row := range rows {
		if i, ok := index[row.Address]; ok {
			watched[i].Destinations = append(watched[i].Destinations, row.Destination)
		}
	}

	return watched, nil
}

// Upsert registers an address and replaces its destinations
func (r *AddressRepo) Upsert(ctx context.Context, w entities.WatchedAddress) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO watched_addresses (address, nickname, lookback_hours, report_balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			nickname = EXCLUDED.nickname,
			lookback_hours = EXCLUDED.lookback_hours,
			report_balance = EXCLUDED.report_balance,
			active = TRUE
	`
	if _, err := tx.ExecContext(ctx, query, w.Address, w.Nickname, w.LookbackHours, w.ReportBalance); err != nil {
		return fmt.Errorf("failed to upsert watched address: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notification_destinations WHERE address = $1`, w.Address); err != nil {
		return fmt.Errorf("failed to clear destinations: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO notification_destinations (address, channel_id, topic_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range w.Destinations {
		if _, err := stmt.ExecContext(ctx, w.Address, d.ChannelID, d.TopicID); err != nil {
			return fmt.Errorf("failed to insert destination: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
