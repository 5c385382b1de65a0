package store

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Division struct {
	ID       int64
	Name     string
	ChairID  *int64
	DeanID   *int64
	LocID    *int64
	PenID    *int64
}

type Person struct {
	ID   int64
	Name string
}

type Program struct {
	ID              int64
	Name            string
	DivisionID      int64
	HasBeenPaid     bool
	ReportSubmitted bool
	Notes           string
}

type Payee struct {
	ID        int64
	Name      string
	Amount    decimal.NullDecimal
	ProgramID int64
}

type ChangelogEntry struct {
	ID       int64     `json:"id"`
	SaveTime time.Time `json:"saveTime"`
	Changes  string    `json:"changes"`
}

type Review struct {
	ProgramID    int64
	AcademicYear string
	UnderReview  bool
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// DivisionRow is one row of the division/program/payee join used by the
// aggregate read paths and the PDF report.
type DivisionRow struct {
	DivisionID      int64
	DivisionName    string
	ChairName       sql.NullString
	DeanName        sql.NullString
	LocRep          sql.NullString
	PenContact      sql.NullString
	ProgramID       sql.NullInt64
	ProgramName     sql.NullString
	HasBeenPaid     sql.NullBool
	ReportSubmitted sql.NullBool
	Notes           sql.NullString
	UnderReview     sql.NullBool
	PayeeName       sql.NullString
	PayeeAmount     decimal.NullDecimal
}
