package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
)

type profilesRepo struct {
	db *sql.DB
}

func (r *profilesRepo) Get(ctx context.Context, realm, subject string) (oidcrp.IdentityProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT realm, subject, principal_id,
		       access_token, access_expires_at,
		       refresh_token, refresh_expires_at
		FROM identity_profiles
		WHERE realm = ? AND subject = ?`,
		realm, subject,
	)

	var (
		p                oidcrp.IdentityProfile
		accessExpiresAt  sql.NullTime
		refreshExpiresAt sql.NullTime
	)
	err := row.Scan(
		&p.Realm, &p.Subject, &p.PrincipalID,
		&p.AccessToken, &accessExpiresAt,
		&p.RefreshToken, &refreshExpiresAt,
	)
	if err != nil {
		return oidcrp.IdentityProfile{}, mapNotFound(err)
	}

	p.AccessExpiresAt = mapNullTime(accessExpiresAt)
	p.RefreshExpiresAt = mapNullTime(refreshExpiresAt)
	return p, nil
}

func (r *profilesRepo) Upsert(ctx context.Context, profile oidcrp.IdentityProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identity_profiles (
			realm, subject, principal_id,
			access_token, access_expires_at,
			refresh_token, refresh_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (realm, subject) DO UPDATE SET
			principal_id = excluded.principal_id,
			access_token = excluded.access_token,
			access_expires_at = excluded.access_expires_at,
			refresh_token = excluded.refresh_token,
			refresh_expires_at = excluded.refresh_expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		profile.Realm, profile.Subject, profile.PrincipalID,
		profile.AccessToken, mapTimeNull(profile.AccessExpiresAt),
		profile.RefreshToken, mapTimeNull(profile.RefreshExpiresAt),
	)
	return err
}

func (r *profilesRepo) Delete(ctx context.Context, realm, subject string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM identity_profiles WHERE realm = ? AND subject = ?`,
		realm, subject,
	)
	return err
}
