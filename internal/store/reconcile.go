package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Division contact roles. The reconciler iterates these in a fixed order and
// the tx maps them to foreign-key columns.
const (
	RoleChair = "chair"
	RoleDean  = "dean"
	RoleLoc   = "loc"
	RolePen   = "pen"
)

var ErrUnknownRole = errors.New("unknown division role")

func roleColumn(role string) (string, error) {
	switch role {
	case RoleChair:
		return "chair_id", nil
	case RoleDean:
		return "dean_id", nil
	case RoleLoc:
		return "loc_id", nil
	case RolePen:
		return "pen_id", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// ReconcileTx is the transactional handle handed to the division reconciler.
// Every method runs inside the same database transaction; the transaction
// commits only if the reconcile callback returns nil.
type ReconcileTx interface {
	DivisionIDByName(ctx context.Context, name string) (int64, error)
	DivisionRolePersonID(ctx context.Context, divisionID int64, role string) (*int64, error)
	AssignDivisionRole(ctx context.Context, divisionID int64, role string, personID int64) error

	PersonName(ctx context.Context, personID int64) (string, error)
	// RenamePerson mutates the shared persons row; every division
	// referencing it sees the new name.
	RenamePerson(ctx context.Context, personID int64, name string) error
	GetOrCreatePerson(ctx context.Context, name string) (int64, error)

	ProgramByName(ctx context.Context, divisionID int64, name string) (*Program, error)
	InsertProgram(ctx context.Context, p Program) (int64, error)
	UpdateProgram(ctx context.Context, p Program) error
	DeleteProgram(ctx context.Context, programID int64) error

	ProgramPayees(ctx context.Context, programID int64) ([]Payee, error)
	InsertPayee(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error
	UpdatePayeeAmount(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error
	DeletePayee(ctx context.Context, programID int64, name string) error
	DeleteProgramPayees(ctx context.Context, programID int64) error

	InsertChangelog(ctx context.Context, saveTime time.Time, changes string) error
}

// ReconcileDivision runs fn against a transactional handle. Any error from fn
// rolls the whole transaction back; nothing is observable until commit.
func (s *PostgresStore) ReconcileDivision(ctx context.Context, fn func(tx ReconcileTx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	if err := fn(&reconcileTx{tx: dbTx}); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile tx: %w", err)
	}
	return nil
}

type reconcileTx struct {
	tx *sql.Tx
}

func (t *reconcileTx) DivisionIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM divisions WHERE division_name = $1 LIMIT 1`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (t *reconcileTx) DivisionRolePersonID(ctx context.Context, divisionID int64, role string) (*int64, error) {
	column, err := roleColumn(role)
	if err != nil {
		return nil, err
	}
	var personID *int64
	err = t.tx.QueryRowContext(ctx,
		`SELECT `+column+` FROM divisions WHERE id = $1`, divisionID).Scan(&personID)
	if err != nil {
		return nil, fmt.Errorf("read %s role: %w", role, err)
	}
	return personID, nil
}

func (t *reconcileTx) AssignDivisionRole(ctx context.Context, divisionID int64, role string, personID int64) error {
	column, err := roleColumn(role)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE divisions SET `+column+` = $2 WHERE id = $1`, divisionID, personID); err != nil {
		return fmt.Errorf("assign %s role: %w", role, err)
	}
	return nil
}

func (t *reconcileTx) PersonName(ctx context.Context, personID int64) (string, error) {
	var name string
	err := t.tx.QueryRowContext(ctx,
		`SELECT person_name FROM persons WHERE id = $1`, personID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("read person name: %w", err)
	}
	return name, nil
}

func (t *reconcileTx) RenamePerson(ctx context.Context, personID int64, name string) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE persons SET person_name = $2 WHERE id = $1`, personID, name); err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}

func (t *reconcileTx) GetOrCreatePerson(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.New("person name is empty")
	}
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM persons WHERE person_name = $1 LIMIT 1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup person: %w", err)
	}
	if err := t.tx.QueryRowContext(ctx,
		`INSERT INTO persons (person_name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	return id, nil
}

func (t *reconcileTx) ProgramByName(ctx context.Context, divisionID int64, name string) (*Program, error) {
	var p Program
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, program_name, division_id, has_been_paid, report_submitted, notes
		FROM programs WHERE program_name = $1 AND division_id = $2 LIMIT 1
	`, name, divisionID).Scan(&p.ID, &p.Name, &p.DivisionID, &p.HasBeenPaid, &p.ReportSubmitted, &p.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup program: %w", err)
	}
	return &p, nil
}

func (t *reconcileTx) InsertProgram(ctx context.Context, p Program) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO programs (program_name, division_id, has_been_paid, report_submitted, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Name, p.DivisionID, p.HasBeenPaid, p.ReportSubmitted, p.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert program: %w", err)
	}
	return id, nil
}

func (t *reconcileTx) UpdateProgram(ctx context.Context, p Program) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE programs
		SET program_name=$2, division_id=$3, has_been_paid=$4, report_submitted=$5, notes=$6
		WHERE id=$1
	`, p.ID, p.Name, p.DivisionID, p.HasBeenPaid, p.ReportSubmitted, p.Notes)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

func (t *reconcileTx) DeleteProgram(ctx context.Context, programID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM programs WHERE id=$1`, programID); err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	return nil
}

func (t *reconcileTx) ProgramPayees(ctx context.Context, programID int64) ([]Payee, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, payee_name, payee_amount, program_id FROM payees WHERE program_id=$1
	`, programID)
	if err != nil {
		return nil, fmt.Errorf("list payees: %w", err)
	}
	defer rows.Close()

	items := make([]Payee, 0)
	for rows.Next() {
		var item Payee
		if err := rows.Scan(&item.ID, &item.Name, &item.Amount, &item.ProgramID); err != nil {
			return nil, fmt.Errorf("scan payee: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payees: %w", err)
	}
	return items, nil
}

func (t *reconcileTx) InsertPayee(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO payees (payee_name, payee_amount, program_id) VALUES ($1, $2, $3)
	`, name, amount, programID); err != nil {
		return fmt.Errorf("insert payee: %w", err)
	}
	return nil
}

func (t *reconcileTx) UpdatePayeeAmount(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE payees SET payee_amount=$3 WHERE program_id=$1 AND payee_name=$2
	`, programID, name, amount); err != nil {
		return fmt.Errorf("update payee: %w", err)
	}
	return nil
}

func (t *reconcileTx) DeletePayee(ctx context.Context, programID int64, name string) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM payees WHERE program_id=$1 AND payee_name=$2
	`, programID, name); err != nil {
		return fmt.Errorf("delete payee: %w", err)
	}
	return nil
}

func (t *reconcileTx) DeleteProgramPayees(ctx context.Context, programID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM payees WHERE program_id=$1`, programID); err != nil {
		return fmt.Errorf("delete program payees: %w", err)
	}
	return nil
}

func (t *reconcileTx) InsertChangelog(ctx context.Context, saveTime time.Time, changes string) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO changelog (save_time, changes) VALUES ($1, $2)
	`, saveTime, changes); err != nil {
		return fmt.Errorf("insert changelog: %w", err)
	}
	return nil
}
