package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
)

type principalsRepo struct {
	db *sql.DB
}

func (r *principalsRepo) GetBySubject(ctx context.Context, subject string) (oidcrp.Principal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject, email, given_name, family_name
		FROM principals
		WHERE subject = ?`,
		subject,
	)

	var p oidcrp.Principal
	err := row.Scan(&p.ID, &p.Subject, &p.Email, &p.GivenName, &p.FamilyName)
	if err != nil {
		return oidcrp.Principal{}, mapNotFound(err)
	}
	return p, nil
}

func (r *principalsRepo) Create(ctx context.Context, principal oidcrp.Principal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO principals (id, subject, email, given_name, family_name)
		VALUES (?, ?, ?, ?, ?)`,
		principal.ID, principal.Subject, principal.Email,
		principal.GivenName, principal.FamilyName,
	)
	return err
}
