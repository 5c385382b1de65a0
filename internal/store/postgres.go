package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const divisionJoin = `
	SELECT
		d.id, d.division_name,
		chair.person_name, dean.person_name, loc.person_name, pen.person_name,
		p.id, p.program_name, p.has_been_paid, p.report_submitted, p.notes,
		NULL::boolean,
		py.payee_name, py.payee_amount
	FROM divisions d
	LEFT JOIN programs p ON d.id = p.division_id
	LEFT JOIN payees py ON p.id = py.program_id
	LEFT JOIN persons chair ON d.chair_id = chair.id
	LEFT JOIN persons dean ON d.dean_id = dean.id
	LEFT JOIN persons loc ON d.loc_id = loc.id
	LEFT JOIN persons pen ON d.pen_id = pen.id
`

func scanDivisionRows(rows *sql.Rows) ([]DivisionRow, error) {
	defer rows.Close()
	items := make([]DivisionRow, 0)
	for rows.Next() {
		var item DivisionRow
		if err := rows.Scan(
			&item.DivisionID, &item.DivisionName,
			&item.ChairName, &item.DeanName, &item.LocRep, &item.PenContact,
			&item.ProgramID, &item.ProgramName, &item.HasBeenPaid, &item.ReportSubmitted, &item.Notes,
			&item.UnderReview,
			&item.PayeeName, &item.PayeeAmount,
		); err != nil {
			return nil, fmt.Errorf("scan division row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate division rows: %w", err)
	}
	return items, nil
}

// ListDivisionRows returns the full division/program/payee join for the home view.
func (s *PostgresStore) ListDivisionRows(ctx context.Context) ([]DivisionRow, error) {
	rows, err := s.db.QueryContext(ctx, divisionJoin+`
		ORDER BY d.division_name, p.program_name, py.payee_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list division rows: %w", err)
	}
	return scanDivisionRows(rows)
}

// ListEditRows returns the edit view join. A non-empty year restricts the
// result to programs under review for that academic year.
func (s *PostgresStore) ListEditRows(ctx context.Context, year string) ([]DivisionRow, error) {
	if year == "" {
		return s.ListDivisionRows(ctx)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			d.id, d.division_name,
			chair.person_name, dean.person_name, loc.person_name, pen.person_name,
			p.id, p.program_name, p.has_been_paid, p.report_submitted, p.notes,
			r.under_review,
			py.payee_name, py.payee_amount
		FROM divisions d
		LEFT JOIN programs p ON d.id = p.division_id
		LEFT JOIN reviews r ON p.id = r.program_id AND r.academic_year = $1
		LEFT JOIN payees py ON p.id = py.program_id
		LEFT JOIN persons chair ON d.chair_id = chair.id
		LEFT JOIN persons dean ON d.dean_id = dean.id
		LEFT JOIN persons loc ON d.loc_id = loc.id
		LEFT JOIN persons pen ON d.pen_id = pen.id
		WHERE r.under_review
		ORDER BY d.division_name, p.program_name, py.payee_name
	`, year)
	if err != nil {
		return nil, fmt.Errorf("list edit rows: %w", err)
	}
	return scanDivisionRows(rows)
}

// DivisionReportRows returns the join for a single division, for PDF export.
func (s *PostgresStore) DivisionReportRows(ctx context.Context, divisionID int64) ([]DivisionRow, error) {
	rows, err := s.db.QueryContext(ctx, divisionJoin+`
		WHERE d.id = $1
		ORDER BY p.program_name, py.payee_name
	`, divisionID)
	if err != nil {
		return nil, fmt.Errorf("division report rows: %w", err)
	}
	return scanDivisionRows(rows)
}

func (s *PostgresStore) GetDivision(ctx context.Context, divisionID int64) (Division, error) {
	var d Division
	err := s.db.QueryRowContext(ctx, `
		SELECT id, division_name, chair_id, dean_id, loc_id, pen_id
		FROM divisions WHERE id = $1
	`, divisionID).Scan(&d.ID, &d.Name, &d.ChairID, &d.DeanID, &d.LocID, &d.PenID)
	if err != nil {
		return Division{}, err
	}
	return d, nil
}

func (s *PostgresStore) DivisionIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM divisions WHERE division_name = $1 LIMIT 1`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

var tokenSplit = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NameTokens lowercases and splits a lookup string on non-alphanumeric runs.
func NameTokens(name string) []string {
	parts := tokenSplit.Split(name, -1)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(part))
	}
	return tokens
}

// FindDivisionTolerant resolves a human-entered division name. Match order:
// exact (trim+lower), substring, then tokenized fuzzy where every token must
// appear in the stored name. Each stage orders by id so repeated lookups with
// multiple candidates stay deterministic.
func (s *PostgresStore) FindDivisionTolerant(ctx context.Context, name string) (Division, error) {
	scanOne := func(query string, args ...any) (Division, error) {
		var d Division
		err := s.db.QueryRowContext(ctx, query, args...).Scan(
			&d.ID, &d.Name, &d.ChairID, &d.DeanID, &d.LocID, &d.PenID)
		return d, err
	}

	d, err := scanOne(`
		SELECT id, division_name, chair_id, dean_id, loc_id, pen_id
		FROM divisions
		WHERE TRIM(LOWER(division_name)) = TRIM(LOWER($1))
		ORDER BY id LIMIT 1
	`, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Division{}, fmt.Errorf("exact division lookup: %w", err)
	}

	d, err = scanOne(`
		SELECT id, division_name, chair_id, dean_id, loc_id, pen_id
		FROM divisions
		WHERE division_name LIKE '%' || $1 || '%'
		ORDER BY id LIMIT 1
	`, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Division{}, fmt.Errorf("substring division lookup: %w", err)
	}

	tokens := NameTokens(name)
	if len(tokens) == 0 {
		return Division{}, sql.ErrNoRows
	}
	clauses := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for i, token := range tokens {
		clauses = append(clauses, fmt.Sprintf("LOWER(division_name) LIKE '%%' || $%d || '%%'", i+1))
		args = append(args, token)
	}
	d, err = scanOne(`
		SELECT id, division_name, chair_id, dean_id, loc_id, pen_id
		FROM divisions
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY id LIMIT 1
	`, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Division{}, sql.ErrNoRows
		}
		return Division{}, fmt.Errorf("tokenized division lookup: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListChangelog(ctx context.Context) ([]ChangelogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, save_time, changes FROM changelog ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list changelog: %w", err)
	}
	defer rows.Close()

	items := make([]ChangelogEntry, 0)
	for rows.Next() {
		var item ChangelogEntry
		if err := rows.Scan(&item.ID, &item.SaveTime, &item.Changes); err != nil {
			return nil, fmt.Errorf("scan changelog entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changelog: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountDivisions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM divisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count divisions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) InsertDivision(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO divisions (division_name) VALUES ($1)
		ON CONFLICT (division_name) DO UPDATE SET division_name = EXCLUDED.division_name
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert division: %w", err)
	}
	return id, nil
}

// GetOrCreatePerson resolves a name to a person id, inserting on first use.
// Empty and whitespace-only names resolve to nil (no person).
func (s *PostgresStore) GetOrCreatePerson(ctx context.Context, name string) (*int64, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM persons WHERE person_name = $1 LIMIT 1`, name).Scan(&id)
	if err == nil {
		return &id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup person: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO persons (person_name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &id, nil
}

// SetDivisionRoles overwrites all four role slots at once. Used only by the
// simple save path; the reconciler updates roles individually in its tx.
func (s *PostgresStore) SetDivisionRoles(ctx context.Context, divisionID int64, chairID, deanID, locID, penID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE divisions SET chair_id=$2, dean_id=$3, loc_id=$4, pen_id=$5 WHERE id=$1
	`, divisionID, chairID, deanID, locID, penID)
	if err != nil {
		return fmt.Errorf("set division roles: %w", err)
	}
	return nil
}

func (s *PostgresStore) ProgramIDByName(ctx context.Context, divisionID int64, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM programs WHERE program_name = $1 AND division_id = $2 LIMIT 1
	`, name, divisionID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) UpdateProgramFields(ctx context.Context, programID int64, hasBeenPaid, reportSubmitted bool, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE programs SET has_been_paid=$2, report_submitted=$3, notes=$4 WHERE id=$1
	`, programID, hasBeenPaid, reportSubmitted, notes)
	if err != nil {
		return fmt.Errorf("update program fields: %w", err)
	}
	return nil
}

// SetReview upserts a program's review flag for an academic year.
func (s *PostgresStore) SetReview(ctx context.Context, programID int64, academicYear string, underReview bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (program_id, academic_year, under_review)
		VALUES ($1, $2, $3)
		ON CONFLICT (program_id, academic_year) DO UPDATE SET under_review = EXCLUDED.under_review
	`, programID, academicYear, underReview)
	if err != nil {
		return fmt.Errorf("set review: %w", err)
	}
	return nil
}

// ReplacePayees deletes and re-inserts a program's payee set wholesale.
func (s *PostgresStore) ReplacePayees(ctx context.Context, programID int64, payees map[string]decimal.NullDecimal) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM payees WHERE program_id=$1`, programID); err != nil {
		return fmt.Errorf("clear payees: %w", err)
	}
	for name, amount := range payees {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO payees (payee_name, payee_amount, program_id) VALUES ($1, $2, $3)
		`, name, amount, programID); err != nil {
			return fmt.Errorf("insert payee %q: %w", name, err)
		}
	}
	return nil
}
