package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// unboundClause matches rows whose device column holds no usable device id,
// mirroring NormalizeDeviceID.
const unboundClause = `(TRIM(COALESCE(device_id, '')) = '' OR LOWER(TRIM(device_id)) IN ('nan', 'none', 'null'))`

type sqlStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore wraps a MySQL or SQLite connection whose schema was created by
// db.EnsureSchema.
func NewSQLStore(conn *sql.DB) Store {
	return &sqlStore{db: conn, now: time.Now}
}

func (s *sqlStore) ReadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, device_id, registered_at, created_at FROM access_tokens ORDER BY token`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *sqlStore) Get(ctx context.Context, token string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, device_id, registered_at, created_at FROM access_tokens WHERE token = ?`, token)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrTokenNotFound
		}
		return Record{}, unavailable(err)
	}
	return r, nil
}

func (s *sqlStore) Bind(ctx context.Context, token, deviceID string, at time.Time) (Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_tokens SET device_id = ?, registered_at = ? WHERE token = ? AND `+unboundClause,
		deviceID, at.UTC(), token)
	if err != nil {
		return Record{}, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, unavailable(err)
	}

	current, err := s.Get(ctx, token)
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		return current, ErrAlreadyBound
	}
	return current, nil
}

func (s *sqlStore) Reset(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE access_tokens SET device_id = '', registered_at = NULL WHERE token = ?`, token)
	if err != nil {
		return unavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the token was already unbound.
	_, err = s.Get(ctx, token)
	return err
}

func (s *sqlStore) Issue(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO access_tokens (token, device_id, created_at) VALUES (?, '', ?)`, token, s.now().UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrTokenExists
		}
		return unavailable(err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token = ?`, token)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r            Record
		deviceID     sql.NullString
		registeredAt sql.NullTime
		createdAt    sql.NullTime
	)
	if err := row.Scan(&r.Token, &deviceID, &registeredAt, &createdAt); err != nil {
		return Record{}, err
	}
	r.DeviceID = NormalizeDeviceID(deviceID.String)
	if registeredAt.Valid && r.DeviceID != "" {
		r.RegisteredAt = registeredAt.Time.UTC()
	}
	if createdAt.Valid {
		r.CreatedAt = createdAt.Time.UTC()
	}
	return r, nil
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
