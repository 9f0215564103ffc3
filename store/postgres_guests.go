package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"qrcheckin-backend/models"
)

const guestColumns = `id, event_id, name, email, phone, invitation_type, qr_token, qr_issued_at,
	is_checked_in, checked_in_at, checked_in_by, created_at, updated_at`

func scanGuest(row pgx.Row) (*models.Guest, error) {
	var g models.Guest
	err := row.Scan(
		&g.ID,
		&g.EventID,
		&g.Name,
		&g.Email,
		&g.Phone,
		&g.InvitationType,
		&g.QRToken,
		&g.QRIssuedAt,
		&g.IsCheckedIn,
		&g.CheckedInAt,
		&g.CheckedInBy,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func collectGuests(rows pgx.Rows) ([]models.Guest, error) {
	defer rows.Close()
	guests := []models.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guest: %w", err)
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

const insertGuest = `
	INSERT INTO guests (id, event_id, name, email, phone, invitation_type)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at
`

func (p *Postgres) CreateGuest(ctx context.Context, g *models.Guest) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	err := p.db.QueryRow(ctx, insertGuest, g.ID, g.EventID, g.Name, g.Email, g.Phone, g.InvitationType).
		Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert guest: %w", mapError(err))
	}
	return nil
}

// CreateGuests inserts all guests in one transaction.
func (p *Postgres) CreateGuests(ctx context.Context, guests []*models.Guest) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin guest import: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, g := range guests {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		batch.Queue(insertGuest, g.ID, g.EventID, g.Name, g.Email, g.Phone, g.InvitationType).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&g.CreatedAt, &g.UpdatedAt)
			})
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert guests: %w", mapError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit guest import: %w", err)
	}
	return nil
}

func (p *Postgres) FindGuest(ctx context.Context, guestID, eventID uuid.UUID) (*models.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guests WHERE id = $1 AND event_id = $2`
	g, err := scanGuest(p.db.QueryRow(ctx, query, guestID, eventID))
	if err != nil {
		return nil, mapError(err)
	}
	return g, nil
}

func (p *Postgres) ListGuests(ctx context.Context, f models.GuestFilter) (*models.GuestPage, error) {
	where := []string{"event_id = $1"}
	args := []any{f.EventID}
	if f.Search != "" {
		args = append(args, likePattern(f.Search))
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", n, n, n))
	}
	if f.InvitationType != "" {
		args = append(args, f.InvitationType)
		where = append(where, fmt.Sprintf("invitation_type = $%d", len(args)))
	}
	if f.CheckedIn != nil {
		args = append(args, *f.CheckedIn)
		where = append(where, fmt.Sprintf("is_checked_in = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	page := &models.GuestPage{}
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM guests WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count guests: %w", err)
	}

	query := `SELECT ` + guestColumns + ` FROM guests WHERE ` + cond + ` ORDER BY created_at DESC, name`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	guests, err := collectGuests(rows)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	page.Guests = guests
	return page, nil
}

func (p *Postgres) ExistingEmails(ctx context.Context, eventID uuid.UUID, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(emails) == 0 {
		return found, nil
	}
	rows, err := p.db.Query(ctx, `SELECT email FROM guests WHERE event_id = $1 AND email = ANY($2)`, eventID, emails)
	if err != nil {
		return nil, fmt.Errorf("find existing emails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		found[email] = true
	}
	return found, rows.Err()
}

func (p *Postgres) UpdateGuest(ctx context.Context, g *models.Guest) error {
	query := `
		UPDATE guests
		SET name = $3, email = $4, phone = $5, invitation_type = $6, updated_at = NOW()
		WHERE id = $1 AND event_id = $2
		RETURNING ` + guestColumns
	updated, err := scanGuest(p.db.QueryRow(ctx, query, g.ID, g.EventID, g.Name, g.Email, g.Phone, g.InvitationType))
	if err != nil {
		return fmt.Errorf("update guest: %w", mapError(err))
	}
	*g = *updated
	return nil
}

func (p *Postgres) DeleteGuest(ctx context.Context, guestID, eventID uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM guests WHERE id = $1 AND event_id = $2`, guestID, eventID)
	if err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SearchGuests(ctx context.Context, eventID uuid.UUID, term string, limit int) ([]models.Guest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM guests
		WHERE event_id = $1 AND (name ILIKE $2 OR email ILIKE $2 OR phone ILIKE $2)
		ORDER BY name
		LIMIT $3
	`
	rows, err := p.db.Query(ctx, query, eventID, likePattern(term), limit)
	if err != nil {
		return nil, fmt.Errorf("search guests: %w", err)
	}
	return collectGuests(rows)
}

func (p *Postgres) GuestsForTokenIssue(ctx context.Context, eventID uuid.UUID, regenerate bool, limit int) ([]models.Guest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM guests
		WHERE event_id = $1 AND ($2 OR qr_token IS NULL)
		ORDER BY created_at, name
		LIMIT NULLIF($3::int, 0)
	`
	rows, err := p.db.Query(ctx, query, eventID, regenerate, limit)
	if err != nil {
		return nil, fmt.Errorf("select guests for qr issue: %w", err)
	}
	return collectGuests(rows)
}

func (p *Postgres) SetGuestToken(ctx context.Context, guestID, eventID uuid.UUID, token string, issuedAt time.Time) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE guests SET qr_token = $3, qr_issued_at = $4, updated_at = NOW()
		WHERE id = $1 AND event_id = $2
	`, guestID, eventID, token, issuedAt)
	if err != nil {
		return fmt.Errorf("store guest token: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GuestsWithToken(ctx context.Context, eventID uuid.UUID, invitationType models.InvitationType) ([]models.Guest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM guests
		WHERE event_id = $1 AND qr_token IS NOT NULL AND ($2 = '' OR invitation_type = $2)
		ORDER BY name
	`
	rows, err := p.db.Query(ctx, query, eventID, string(invitationType))
	if err != nil {
		return nil, fmt.Errorf("select guests with tokens: %w", err)
	}
	return collectGuests(rows)
}

// MarkCheckedIn is a single conditional write: it succeeds only for the caller
// that observes is_checked_in = FALSE.
func (p *Postgres) MarkCheckedIn(ctx context.Context, guestID, eventID uuid.UUID, checkedInBy string, at time.Time) (bool, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE guests
		SET is_checked_in = TRUE, checked_in_at = $3, checked_in_by = $4, updated_at = $3
		WHERE id = $1 AND event_id = $2 AND is_checked_in = FALSE
	`, guestID, eventID, at, checkedInBy)
	if err != nil {
		return false, fmt.Errorf("mark guest checked in: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) CountGuests(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error) {
	var counts models.GuestCounts
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_checked_in)
		FROM guests WHERE event_id = $1
	`, eventID).Scan(&counts.Total, &counts.CheckedIn)
	if err != nil {
		return counts, fmt.Errorf("count guests: %w", err)
	}
	counts.Pending = counts.Total - counts.CheckedIn
	return counts, nil
}

func (p *Postgres) CountGuestsByType(ctx context.Context, eventID uuid.UUID) ([]models.TypeCount, error) {
	rows, err := p.db.Query(ctx, `
		SELECT invitation_type, COUNT(*)
		FROM guests WHERE event_id = $1
		GROUP BY invitation_type
		ORDER BY invitation_type
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("count guests by type: %w", err)
	}
	defer rows.Close()
	counts := []models.TypeCount{}
	for rows.Next() {
		var tc models.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
