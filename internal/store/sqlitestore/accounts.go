package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kolmeter/internal/model"
	"kolmeter/internal/util"
)

const selectAccountSQL = `SELECT id, handle, provider_id, active, created_at, resolved_at FROM tracked_accounts`

// AddTrackedAccount registers handle. Registering an existing handle returns
// the stored account unchanged.
func (d *DB) AddTrackedAccount(ctx context.Context, handle string) (model.TrackedAccount, error) {
	h := util.NormalizeHandle(handle)
	if h == "" {
		return model.TrackedAccount{}, errors.New("empty handle")
	}
	now := time.Now().UTC()
	_, err := d.sql.ExecContext(ctx, `INSERT INTO tracked_accounts(id, handle, active, created_at) VALUES(?,?,1,?)
		ON CONFLICT(handle) DO NOTHING`, uuid.NewString(), h, now.UnixMilli())
	if err != nil {
		return model.TrackedAccount{}, fmt.Errorf("add %s: %w", h, err)
	}
	return d.TrackedAccountByHandle(ctx, h)
}

// TrackedAccountByHandle looks an account up by handle.
func (d *DB) TrackedAccountByHandle(ctx context.Context, handle string) (model.TrackedAccount, error) {
	row := d.sql.QueryRowContext(ctx, selectAccountSQL+` WHERE handle=?`, util.NormalizeHandle(handle))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("account %q: %w", handle, ErrNotFound)
	}
	return a, err
}

// ListTrackedAccounts returns accounts in registration order.
func (d *DB) ListTrackedAccounts(ctx context.Context, activeOnly bool) ([]model.TrackedAccount, error) {
	q := selectAccountSQL
	if activeOnly {
		q += ` WHERE active=1`
	}
	rows, err := d.sql.QueryContext(ctx, q+` ORDER BY created_at, handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TrackedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAccountActive toggles whether the pipeline collects handle.
func (d *DB) SetAccountActive(ctx context.Context, handle string, active bool) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE tracked_accounts SET active=? WHERE handle=?`, boolInt(active), util.NormalizeHandle(handle))
	if err != nil {
		return err
	}
	return expectOne(res, handle)
}

// SetProviderID records the provider account id resolved for handle.
func (d *DB) SetProviderID(ctx context.Context, handle, providerID string, at time.Time) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE tracked_accounts SET provider_id=?, resolved_at=? WHERE handle=?`,
		nullString(providerID), at.UnixMilli(), util.NormalizeHandle(handle))
	if err != nil {
		return err
	}
	return expectOne(res, handle)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(r rowScanner) (model.TrackedAccount, error) {
	var a model.TrackedAccount
	var pid sql.NullString
	var active int
	var created, resolved sql.NullInt64
	if err := r.Scan(&a.ID, &a.Handle, &pid, &active, &created, &resolved); err != nil {
		return a, err
	}
	a.ProviderID = pid.String
	a.Active = active == 1
	a.CreatedAt = fromMilli(created)
	a.ResolvedAt = fromMilli(resolved)
	return a, nil
}

func expectOne(res sql.Result, handle string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %q: %w", handle, ErrNotFound)
	}
	return nil
}
