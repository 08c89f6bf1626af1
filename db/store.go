package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// SQLSTATE for a missing user or creator row behind a subscription insert.
const pgForeignKeyViolation = "23503"

// Store runs the roster, subscription and ledger queries against the shared pool.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open pool.
func NewStore(dbx *sql.DB) *Store { return &Store{DB: dbx} }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// EnsureUser records a user on first contact. Existing rows are left untouched
// and created reports whether a new row was written.
func (s *Store) EnsureUser(ctx context.Context, u User) (created bool, err error) {
	res, err := s.DB.ExecContext(ctx, `INSERT INTO users (first_name, last_name, username, external_user_id, chat_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_user_id) DO NOTHING`,
		u.FirstName, u.LastName, u.Username, u.ExternalUserID, u.ChatID)
	if err != nil {
		return false, fmt.Errorf("insert user %d: %w", u.ExternalUserID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertCreatorIfMissing seeds one roster entry keyed by (first_name, last_name).
// A channel id learned later fills an empty column but never overwrites a set one.
func (s *Store) InsertCreatorIfMissing(ctx context.Context, c Creator) (inserted bool, err error) {
	var wasInserted bool
	err = s.DB.QueryRowContext(ctx, `INSERT INTO creators (first_name, last_name, emoji, group_name, external_handle, external_channel_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (first_name, last_name) DO UPDATE
			SET external_channel_id = CASE WHEN creators.external_channel_id = '' THEN EXCLUDED.external_channel_id ELSE creators.external_channel_id END
		RETURNING (xmax = 0)`,
		c.FirstName, c.LastName, c.Emoji, c.GroupName, c.ExternalHandle, c.ExternalChannelID).Scan(&wasInserted)
	if err != nil {
		return false, fmt.Errorf("seed creator %s: %w", c.DisplayName(), err)
	}
	return wasInserted, nil
}

const creatorColumns = `id, first_name, last_name, emoji, group_name, external_handle, external_channel_id`

func scanCreator(row interface{ Scan(...any) error }) (Creator, error) {
	var c Creator
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Emoji, &c.GroupName, &c.ExternalHandle, &c.ExternalChannelID)
	return c, err
}

// ListCreators returns the whole roster ordered by id.
func (s *Store) ListCreators(ctx context.Context) ([]Creator, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+creatorColumns+` FROM creators ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	defer rows.Close()
	var out []Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan creator: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreatorByName looks up a creator by the name pair carried in callback payloads.
func (s *Store) CreatorByName(ctx context.Context, first, last string) (Creator, error) {
	c, err := scanCreator(s.DB.QueryRowContext(ctx,
		`SELECT `+creatorColumns+` FROM creators WHERE first_name = $1 AND last_name = $2`, first, last))
	if errors.Is(err, sql.ErrNoRows) {
		return Creator{}, fmt.Errorf("creator %s %s: %w", first, last, ErrNotFound)
	}
	if err != nil {
		return Creator{}, fmt.Errorf("creator %s %s: %w", first, last, err)
	}
	return c, nil
}

// GroupCounts returns, per group, the user's subscription count and the group size.
// Rows come back unordered; callers apply the debut order.
func (s *Store) GroupCounts(ctx context.Context, userID int64) ([]GroupCount, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT c.group_name, COUNT(s.id), COUNT(c.id)
		FROM creators c
		LEFT JOIN subscriptions s ON s.creator_id = c.id AND s.user_id = $1
		GROUP BY c.group_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()
	var out []GroupCount
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Group, &g.Subscribed, &g.Total); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupMembers lists a group's creators in roster order with the user's subscription flag.
func (s *Store) GroupMembers(ctx context.Context, userID int64, group string) ([]MemberState, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT c.id, c.first_name, c.last_name, c.emoji, c.group_name, c.external_handle, c.external_channel_id,
			(s.id IS NOT NULL)
		FROM creators c
		LEFT JOIN subscriptions s ON s.creator_id = c.id AND s.user_id = $1
		WHERE c.group_name = $2
		ORDER BY c.id`, userID, group)
	if err != nil {
		return nil, fmt.Errorf("group members %s: %w", group, err)
	}
	defer rows.Close()
	var out []MemberState
	for rows.Next() {
		var m MemberState
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Emoji, &m.GroupName, &m.ExternalHandle, &m.ExternalChannelID, &m.Subscribed); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ToggleSubscription flips the (user, creator) subscription and returns the new state.
// The delete and the conditional insert share one transaction; an insert that loses a
// race to a concurrent toggle (ON CONFLICT) leaves the row present, which is already the
// requested state and is reported as subscribed.
func (s *Store) ToggleSubscription(ctx context.Context, userID, creatorID int64) (subscribed bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = $1 AND creator_id = $2`, userID, creatorID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO subscriptions (user_id, creator_id) VALUES ($1, $2)
			ON CONFLICT (user_id, creator_id) DO NOTHING`, userID, creatorID)
		switch code := pgCode(err); {
		case err == nil:
		case code == pgForeignKeyViolation:
			return false, fmt.Errorf("subscribe user %d to creator %d: %w", userID, creatorID, ErrNotFound)
		default:
			return false, fmt.Errorf("insert subscription: %w", err)
		}
		subscribed = true
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit toggle: %w", err)
	}
	return subscribed, nil
}

// Subscribers returns the users following a creator.
func (s *Store) Subscribers(ctx context.Context, creatorID int64) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT u.id, u.first_name, u.last_name, u.username, u.external_user_id, u.chat_id
		FROM users u
		JOIN subscriptions s ON s.user_id = u.external_user_id
		WHERE s.creator_id = $1
		ORDER BY u.id`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("subscribers of %d: %w", creatorID, err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.ExternalUserID, &u.ChatID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LedgerEntry looks up any ledger row for a stream id.
func (s *Store) LedgerEntry(ctx context.Context, streamID string) (LedgerEntry, bool, error) {
	var e LedgerEntry
	err := s.DB.QueryRowContext(ctx, `SELECT id, external_stream_id, creator_id, scheduled_start
		FROM ledger WHERE external_stream_id = $1 ORDER BY id LIMIT 1`, streamID).
		Scan(&e.ID, &e.StreamID, &e.CreatorID, &e.ScheduledStart)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("ledger lookup %s: %w", streamID, err)
	}
	return e, true, nil
}

// RecordNotified appends a ledger row; a repeat for the same stream and creator is a no-op.
func (s *Store) RecordNotified(ctx context.Context, e LedgerEntry) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO ledger (external_stream_id, creator_id, scheduled_start)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_stream_id, creator_id) DO NOTHING`,
		e.StreamID, e.CreatorID, e.ScheduledStart.UTC())
	if err != nil {
		return fmt.Errorf("record ledger %s: %w", e.StreamID, err)
	}
	return nil
}

// PruneLedger deletes entries whose scheduled start is strictly before now.
func (s *Store) PruneLedger(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM ledger WHERE scheduled_start < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Counts returns row counts for every table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.DB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM creators),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM subscriptions),
		(SELECT COUNT(*) FROM ledger)`).Scan(&c.Creators, &c.Users, &c.Subscriptions, &c.LedgerEntries)
	if err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}
