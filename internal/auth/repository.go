package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"portal-admin/internal/db"
)

const (
	keyToken  = "adminToken"
	keyExpiry = "adminTokenExpiry"
)

// Repository is the SQL-backed Store. The two entries live as rows of the
// admin_session table; expiry is kept as epoch milliseconds.
type Repository struct {
	db      *sql.DB
	dialect db.Dialect
	sealer  *Sealer
}

func NewRepository(database *sql.DB, dialect db.Dialect) *Repository {
	return &Repository{db: database, dialect: dialect}
}

// WithSealer stores the token encrypted.
func (r *Repository) WithSealer(sealer *Sealer) *Repository {
	r.sealer = sealer
	return r
}

func (r *Repository) Load(ctx context.Context) (Record, bool, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
		SELECT name, value
		FROM admin_session
		WHERE name IN (?, ?)
	`), keyToken, keyExpiry)
	if err != nil {
		return Record{}, false, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 2)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Record{}, false, fmt.Errorf("scan session entry: %w", err)
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, fmt.Errorf("iterate session entries: %w", err)
	}

	token, expiryRaw := values[keyToken], values[keyExpiry]
	if token == "" || expiryRaw == "" {
		return Record{}, false, nil
	}

	millis, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return Record{}, false, nil
	}

	if r.sealer != nil {
		token, err = r.sealer.Open(token)
		if err != nil {
			return Record{}, false, err
		}
	}

	return Record{Token: token, Expiry: time.UnixMilli(millis)}, true, nil
}

func (r *Repository) Save(ctx context.Context, record Record) error {
	token := record.Token
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
		token = sealed
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	upsert := r.dialect.Rebind(`
		INSERT INTO admin_session (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, upsert, keyToken, token, now); err != nil {
		return fmt.Errorf("upsert session token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, keyExpiry, strconv.FormatInt(record.Expiry.UnixMilli(), 10), now); err != nil {
		return fmt.Errorf("upsert session expiry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

func (r *Repository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		DELETE FROM admin_session
		WHERE name IN (?, ?)
	`), keyToken, keyExpiry)
	if err != nil {
		return fmt.Errorf("clear session entries: %w", err)
	}
	return nil
}
