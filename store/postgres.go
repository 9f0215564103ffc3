package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"qrcheckin-backend/models"
)

const uniqueViolation = "23505"

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

const eventColumns = `id, name, description, event_date, location, admin_code, created_by, is_active, max_guests, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Description,
		&e.Date,
		&e.Location,
		&e.AdminCode,
		&e.CreatedBy,
		&e.IsActive,
		&e.MaxGuests,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *Postgres) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO events (id, name, description, event_date, location, admin_code, created_by, is_active, max_guests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := p.db.QueryRow(ctx, query,
		e.ID, e.Name, e.Description, e.Date, e.Location, e.AdminCode, e.CreatedBy, e.IsActive, e.MaxGuests,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", mapError(err))
	}
	return nil
}

func (p *Postgres) FindEventByAdminCode(ctx context.Context, code string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE admin_code = $1 AND is_active = TRUE`
	e, err := scanEvent(p.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, mapError(err)
	}
	return e, nil
}

func (p *Postgres) UpdateEvent(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE events
		SET name = $2, description = $3, event_date = $4, location = $5, max_guests = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := p.db.QueryRow(ctx, query, e.ID, e.Name, e.Description, e.Date, e.Location, e.MaxGuests).Scan(&e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update event: %w", mapError(err))
	}
	return nil
}

func (p *Postgres) DeactivateEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `UPDATE events SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
