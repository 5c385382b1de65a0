package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvectors are built inline; the tables are small enough that dedicated
// indexed columns are not worth the migration churn.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across divisions, programs, and payees
// using plainto_tsquery and ts_rank.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDivision {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'division'::text AS type, d.id::text, d.division_name AS title,
				coalesce(dean.person_name, '') AS snippet,
				d.division_name,
				ts_rank(to_tsvector('english',
					d.division_name || ' ' ||
					coalesce(chair.person_name, '') || ' ' ||
					coalesce(dean.person_name, '') || ' ' ||
					coalesce(loc.person_name, '') || ' ' ||
					coalesce(pen.person_name, '')), %s) AS rank
			FROM divisions d
			LEFT JOIN persons chair ON chair.id = d.chair_id
			LEFT JOIN persons dean ON dean.id = d.dean_id
			LEFT JOIN persons loc ON loc.id = d.loc_id
			LEFT JOIN persons pen ON pen.id = d.pen_id
			WHERE to_tsvector('english',
				d.division_name || ' ' ||
				coalesce(chair.person_name, '') || ' ' ||
				coalesce(dean.person_name, '') || ' ' ||
				coalesce(loc.person_name, '') || ' ' ||
				coalesce(pen.person_name, '')) @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultProgram {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'program'::text AS type, p.id::text, p.program_name AS title,
				coalesce(p.notes, '') AS snippet,
				d.division_name,
				ts_rank(to_tsvector('english', p.program_name || ' ' || coalesce(p.notes, '')), %s) AS rank
			FROM programs p
			JOIN divisions d ON d.id = p.division_id
			WHERE to_tsvector('english', p.program_name || ' ' || coalesce(p.notes, '')) @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultPayee {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'payee'::text AS type, pay.id::text, pay.payee_name AS title,
				p.program_name AS snippet,
				d.division_name,
				ts_rank(to_tsvector('english', pay.payee_name), %s) AS rank
			FROM payees pay
			JOIN programs p ON p.id = pay.program_id
			JOIN divisions d ON d.id = p.division_id
			WHERE to_tsvector('english', pay.payee_name) @@ %s`, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, division_name
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &r.DivisionName); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// LoadDivisionRecords reads index records for every division.
func (p *PgFTS) LoadDivisionRecords(ctx context.Context) ([]DivisionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.division_name,
			coalesce(dean.person_name, ''), coalesce(chair.person_name, ''),
			coalesce(pen.person_name, ''), coalesce(loc.person_name, '')
		FROM divisions d
		LEFT JOIN persons chair ON chair.id = d.chair_id
		LEFT JOIN persons dean ON dean.id = d.dean_id
		LEFT JOIN persons loc ON loc.id = d.loc_id
		LEFT JOIN persons pen ON pen.id = d.pen_id
		ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("load division records: %w", err)
	}
	defer rows.Close()

	var records []DivisionRecord
	for rows.Next() {
		var r DivisionRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Dean, &r.Chair, &r.PenContact, &r.LocRep); err != nil {
			return nil, fmt.Errorf("scan division record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadProgramRecords reads index records for every program.
func (p *PgFTS) LoadProgramRecords(ctx context.Context) ([]ProgramRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.program_name, coalesce(p.notes, ''), d.division_name
		FROM programs p
		JOIN divisions d ON d.id = p.division_id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("load program records: %w", err)
	}
	defer rows.Close()

	var records []ProgramRecord
	for rows.Next() {
		var r ProgramRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Notes, &r.DivisionName); err != nil {
			return nil, fmt.Errorf("scan program record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadPayeeRecords reads index records for every payee.
func (p *PgFTS) LoadPayeeRecords(ctx context.Context) ([]PayeeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT pay.id, pay.payee_name, p.program_name, d.division_name
		FROM payees pay
		JOIN programs p ON p.id = pay.program_id
		JOIN divisions d ON d.id = p.division_id
		ORDER BY pay.id`)
	if err != nil {
		return nil, fmt.Errorf("load payee records: %w", err)
	}
	defer rows.Close()

	var records []PayeeRecord
	for rows.Next() {
		var r PayeeRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.ProgramName, &r.DivisionName); err != nil {
			return nil, fmt.Errorf("scan payee record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
