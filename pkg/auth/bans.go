package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Ban is one entry of a ban list. A ban matches by UUID when ID is set,
// otherwise by case-insensitive name.
type Ban struct {
	ID      uuid.UUID `json:"uuid,omitempty"`
	Name    string    `json:"name"`
	Reason  string    `json:"reason"`
	Created time.Time `json:"created"`
	// Expires is zero for permanent bans.
	Expires time.Time `json:"expires,omitempty"`
}

// Active reports whether the ban applies at now.
func (b *Ban) Active(now time.Time) bool {
	return b.Expires.IsZero() || now.Before(b.Expires)
}

// BanList is consulted during login. Implementations must be safe for
// concurrent use.
type BanList interface {
	// Lookup returns the active ban matching the player, or nil.
	Lookup(ctx context.Context, id uuid.UUID, name string) (*Ban, error)

	Add(ctx context.Context, b Ban) error

	// Remove deletes bans matching the name. Removing an unknown name is
	// not an error.
	Remove(ctx context.Context, name string) error

	List(ctx context.Context) ([]Ban, error)
}

func banKey(name string) string {
	return strings.ToLower(name)
}

// MemoryBanList keeps bans in a map keyed by lower-case name.
type MemoryBanList struct {
	mu   sync.RWMutex
	bans map[string]Ban
	now  func() time.Time
}

// NewMemoryBanList creates an empty ban list.
func NewMemoryBanList() *MemoryBanList {
	return &MemoryBanList{bans: make(map[string]Ban), now: time.Now}
}

func (l *MemoryBanList) Lookup(_ context.Context, id uuid.UUID, name string) (*Ban, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := l.now()
	for _, b := range l.bans {
		if !b.Active(now) {
			continue
		}
		if b.ID != uuid.Nil && b.ID == id || strings.EqualFold(b.Name, name) {
			ban := b
			return &ban, nil
		}
	}
	return nil, nil
}

func (l *MemoryBanList) Add(_ context.Context, b Ban) error {
	if b.Name == "" && b.ID == uuid.Nil {
		return errors.New("auth: ban needs a name or uuid")
	}
	if b.Created.IsZero() {
		b.Created = l.now()
	}
	key := banKey(b.Name)
	if key == "" {
		key = b.ID.String()
	}
	l.mu.Lock()
	l.bans[key] = b
	l.mu.Unlock()
	return nil
}

func (l *MemoryBanList) Remove(_ context.Context, name string) error {
	l.mu.Lock()
	delete(l.bans, banKey(name))
	l.mu.Unlock()
	return nil
}

func (l *MemoryBanList) List(context.Context) ([]Ban, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Ban, 0, len(l.bans))
	for _, b := range l.bans {
		out = append(out, b)
	}
	return out, nil
}

// SQLBanList stores bans in a sqlite table:
//
//	CREATE TABLE bans (
//	    name    TEXT PRIMARY KEY,
//	    uuid    TEXT NOT NULL,
//	    reason  TEXT NOT NULL,
//	    created TIMESTAMP NOT NULL,
//	    expires TIMESTAMP
//	);
type SQLBanList struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLBanList opens (or creates) the ban database at path.
func OpenSQLBanList(path string) (*SQLBanList, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	l := &SQLBanList{db: db, now: time.Now}
	if err := l.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLBanList) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bans (
			name TEXT PRIMARY KEY,
			uuid TEXT NOT NULL,
			reason TEXT NOT NULL,
			created TIMESTAMP NOT NULL,
			expires TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("auth: migrate bans: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_bans_uuid ON bans(uuid)`)
	return err
}

func (l *SQLBanList) Lookup(ctx context.Context, id uuid.UUID, name string) (*Ban, error) {
	idStr := ""
	if id != uuid.Nil {
		idStr = id.String()
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT name, uuid, reason, created, expires FROM bans
		WHERE name = ? OR (uuid != '' AND uuid = ?)`, banKey(name), idStr)
	if err != nil {
		return nil, fmt.Errorf("auth: lookup ban: %w", err)
	}
	defer rows.Close()

	now := l.now()
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		if b.Active(now) {
			return &b, nil
		}
	}
	return nil, rows.Err()
}

func scanBan(rows *sql.Rows) (Ban, error) {
	var (
		b       Ban
		idStr   string
		expires sql.NullTime
	)
	if err := rows.Scan(&b.Name, &idStr, &b.Reason, &b.Created, &expires); err != nil {
		return Ban{}, fmt.Errorf("auth: scan ban: %w", err)
	}
	if idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return Ban{}, fmt.Errorf("auth: ban %s: %w", b.Name, err)
		}
		b.ID = id
	}
	if expires.Valid {
		b.Expires = expires.Time
	}
	return b, nil
}

func (l *SQLBanList) Add(ctx context.Context, b Ban) error {
	if b.Name == "" {
		return errors.New("auth: ban needs a name")
	}
	if b.Created.IsZero() {
		b.Created = l.now()
	}
	idStr := ""
	if b.ID != uuid.Nil {
		idStr = b.ID.String()
	}
	var expires sql.NullTime
	if !b.Expires.IsZero() {
		expires = sql.NullTime{Time: b.Expires, Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bans (name, uuid, reason, created, expires)
		VALUES (?, ?, ?, ?, ?)`, banKey(b.Name), idStr, b.Reason, b.Created.UTC(), expires)
	if err != nil {
		return fmt.Errorf("auth: add ban: %w", err)
	}
	return nil
}

func (l *SQLBanList) Remove(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM bans WHERE name = ?`, banKey(name))
	return err
}

func (l *SQLBanList) List(ctx context.Context) ([]Ban, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, uuid, reason, created, expires FROM bans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("auth: list bans: %w", err)
	}
	defer rows.Close()
	var out []Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *SQLBanList) Close() error {
	return l.db.Close()
}
