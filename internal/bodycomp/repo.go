package bodycomp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/bodytrend/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrEntryNotFound = errors.New("entry not found")

type ListParams struct {
	UserID string
	Page   int
	Size   int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, entry Entry) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bodycomp.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO entry
				(user_id, entry_date, unit_system, weight, height, age, neck, waist, hip,
					femininity, bmi, body_fat, lean_mass, fat_mass, hip_missing, notes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING id;`,
		entry.UserID, entry.Date, entry.Units, entry.Weight, entry.Height, entry.Age,
		entry.Neck, entry.Waist, entry.Hip, entry.Femininity,
		entry.BMI, entry.BodyFatPct, entry.LeanMass, entry.FatMass, entry.HipMissing,
		entry.Notes, entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("entry.id", id))

	entry.ID = id
	return &entry, nil
}

func (r *Repo) Get(ctx context.Context, userID string, id int) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bodycomp.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, user_id, entry_date, unit_system, weight, height, age, neck, waist, hip,
				femininity, bmi, body_fat, lean_mass, fat_mass, hip_missing, notes, created_at
			FROM entry
			WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := r.rows2entries(rows)
	if err != nil {
		return nil, err
	}

	if len(entries) != 1 {
		return nil, ErrEntryNotFound
	}

	return &entries[0], nil
}

// ListAll returns all entries of a user, newest entry date first.
func (r *Repo) ListAll(ctx context.Context, userID string) (_ []Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bodycomp.listall")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, user_id, entry_date, unit_system, weight, height, age, neck, waist, hip,
				femininity, bmi, body_fat, lean_mass, fat_mass, hip_missing, notes, created_at
			FROM entry
			WHERE user_id = $1
			ORDER BY entry_date DESC, id DESC;`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	entries, err := r.rows2entries(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2entries: %w", err)
	}
	return entries, nil
}

// List is like ListAll, but returns the specific PAGE of the user history,
// i.e. is used for pagination.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Entry, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bodycomp.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", params.UserID))
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	countAll, err := r.EntriesCount(ctx, params.UserID)
	if err != nil {
		return nil, -1, err
	}

	if countAll <= limit {
		limit = countAll
		offset = 0
	}

	if countAll-offset < limit {
		offset = countAll - limit
	}

	span.SetAttributes(attribute.Int("count_all", countAll))
	span.SetAttributes(attribute.Int("limit", limit))
	span.SetAttributes(attribute.Int("offset", offset))

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, user_id, entry_date, unit_system, weight, height, age, neck, waist, hip,
				femininity, bmi, body_fat, lean_mass, fat_mass, hip_missing, notes, created_at
			FROM entry
			WHERE user_id = $1
			ORDER BY entry_date DESC, id DESC
			LIMIT $2
			OFFSET $3;`,
		params.UserID, limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	entries, err := r.rows2entries(rows)
	if err != nil {
		return nil, -1, err
	}
	return entries, countAll, nil
}

func (r *Repo) EntriesCount(ctx context.Context, userID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bodycomp.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`SELECT COUNT(*) FROM entry WHERE user_id = $1;`,
		userID,
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return -1, err
	}

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err == nil {
			return count, nil
		}
	}

	return -1, errors.New("unexpected error, failed to get entries count")
}

func (r *Repo) rows2entries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var entryDate time.Time
		if err := rows.Scan(
			&e.ID, &e.UserID, &entryDate, &e.Units, &e.Weight, &e.Height, &e.Age,
			&e.Neck, &e.Waist, &e.Hip, &e.Femininity,
			&e.BMI, &e.BodyFatPct, &e.LeanMass, &e.FatMass, &e.HipMissing,
			&e.Notes, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Date = entryDate.Format(entryDateLayout)
		entries = append(entries, e)
	}

	if entries == nil {
		entries = make([]Entry, 0)
	}

	return entries, nil
}
