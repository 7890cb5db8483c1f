package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"turnos-web/internal/domain"
)

const createSessionsTable = `CREATE TABLE IF NOT EXISTS client_sessions (
	id          text PRIMARY KEY,
	token       text NOT NULL,
	email       text NOT NULL DEFAULT '',
	first_name  text NOT NULL DEFAULT '',
	last_name   text NOT NULL DEFAULT '',
	role        text NOT NULL DEFAULT '',
	updated_at  timestamptz NOT NULL
)`

// PostgresStore keeps sessions in the client_sessions table.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createSessionsTable); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

func (p *PostgresStore) Load(ctx context.Context, key string) (Session, error) {
	q := `SELECT token,email,first_name,last_name,role FROM client_sessions WHERE id=$1`
	var s Session
	var role string
	err := p.DB.QueryRow(ctx, q, key).Scan(&s.Token, &s.Identity.Email,
		&s.Identity.FirstName, &s.Identity.LastName, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	s.Identity.Role = domain.Role(role)
	if s.Empty() {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, s Session) error {
	q := `INSERT INTO client_sessions (id, token, email, first_name, last_name, role, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)
	      ON CONFLICT (id) DO UPDATE SET
	          token=EXCLUDED.token, email=EXCLUDED.email, first_name=EXCLUDED.first_name,
	          last_name=EXCLUDED.last_name, role=EXCLUDED.role, updated_at=EXCLUDED.updated_at`
	_, err := p.DB.Exec(ctx, q, key, s.Token, s.Identity.Email, s.Identity.FirstName,
		s.Identity.LastName, string(s.Identity.Role), time.Now().UTC())
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := p.DB.Exec(ctx, `DELETE FROM client_sessions WHERE id=$1`, key)
	return err
}
