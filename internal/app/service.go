package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"divledger/api/internal/authpw"
	"divledger/api/internal/config"
	"divledger/api/internal/export"
	"divledger/api/internal/search"
	"divledger/api/internal/session"
	"divledger/api/internal/store"
	"divledger/api/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// dataStore is the slice of the persistence layer the service needs.
type dataStore interface {
	Ping(ctx context.Context) error

	ListDivisionRows(ctx context.Context) ([]store.DivisionRow, error)
	ListEditRows(ctx context.Context, year string) ([]store.DivisionRow, error)
	ListChangelog(ctx context.Context) ([]store.ChangelogEntry, error)
	CountDivisions(ctx context.Context) (int, error)
	InsertDivision(ctx context.Context, name string) (int64, error)

	FindDivisionTolerant(ctx context.Context, name string) (store.Division, error)
	DivisionReportRows(ctx context.Context, divisionID int64) ([]store.DivisionRow, error)

	ReconcileDivision(ctx context.Context, fn func(tx store.ReconcileTx) error) error

	DivisionIDByName(ctx context.Context, name string) (int64, error)
	GetOrCreatePerson(ctx context.Context, name string) (*int64, error)
	SetDivisionRoles(ctx context.Context, divisionID int64, chairID, deanID, locID, penID *int64) error
	ProgramIDByName(ctx context.Context, divisionID int64, name string) (int64, error)
	UpdateProgramFields(ctx context.Context, programID int64, hasBeenPaid, reportSubmitted bool, notes string) error
	ReplacePayees(ctx context.Context, programID int64, payees map[string]decimal.NullDecimal) error
	SetReview(ctx context.Context, programID int64, academicYear string, underReview bool) error
}

type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	auth     *authpw.Service
	search   *search.Service
	logger   *zap.Logger
	nowFn    func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, authService *authpw.Service, searchService *search.Service, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		auth:     authService,
		search:   searchService,
		logger:   logger,
	}
}

func (s *Service) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the division table on first run. Divisions are created out
// of band in this system; the reconciler never creates or deletes them.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountDivisions(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		seeds := []string{
			"School of Arts and Communication",
			"School of Business",
			"School of Sciences",
			"School of Education",
			"School of Nursing and Health Professions",
		}
		for _, name := range seeds {
			if _, err := s.store.InsertDivision(ctx, name); err != nil {
				return err
			}
		}
	}

	if s.search != nil {
		go s.search.ReindexAllFromPG(context.Background())
	}
	return nil
}

// HomePayload is the home page aggregate: every division with its nested
// programs and payees, plus the changelog newest-first.
type HomePayload struct {
	Departments []DivisionView         `json:"departments"`
	Changelogs  []store.ChangelogEntry `json:"changelogs"`
}

func (s *Service) HomeView(ctx context.Context) (HomePayload, error) {
	rows, err := s.store.ListDivisionRows(ctx)
	if err != nil {
		return HomePayload{}, err
	}
	changelog, err := s.store.ListChangelog(ctx)
	if err != nil {
		return HomePayload{}, err
	}
	return HomePayload{
		Departments: buildDivisionViews(rows),
		Changelogs:  changelog,
	}, nil
}

type EditPayload struct {
	Departments  []DivisionView `json:"departments"`
	SelectedYear string         `json:"selectedYear"`
}

// EditView returns the edit page aggregate. A non-empty year restricts the
// listing to programs under review for that academic year.
func (s *Service) EditView(ctx context.Context, year string) (EditPayload, error) {
	rows, err := s.store.ListEditRows(ctx, year)
	if err != nil {
		return EditPayload{}, err
	}
	return EditPayload{
		Departments:  buildDivisionViews(rows),
		SelectedYear: year,
	}, nil
}

func (s *Service) Changelog(ctx context.Context) ([]store.ChangelogEntry, error) {
	return s.store.ListChangelog(ctx)
}

// SaveDivisionInput is the simpler, non-transactional save path retained for
// compatibility. It overwrites the four role slots and replaces payee sets
// wholesale, and writes no changelog.
type SaveDivisionInput struct {
	DivisionName string           `json:"divisionName"`
	DeanName     string           `json:"deanName"`
	ChairName    string           `json:"chairName"`
	LocRep       string           `json:"locRep"`
	PenContact   string           `json:"penContact"`
	ProgramList  []ProgramPayload `json:"programList"`
}

func (s *Service) SaveDivision(ctx context.Context, input SaveDivisionInput) error {
	if strings.TrimSpace(input.DivisionName) == "" {
		return domainError(http.StatusBadRequest, "DIVISION_NAME_REQUIRED", "Division name is required", nil)
	}

	divisionID, err := s.store.DivisionIDByName(ctx, input.DivisionName)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "DIVISION_NOT_FOUND", "Division not found", nil)
	}
	if err != nil {
		return fmt.Errorf("resolve division: %w", err)
	}

	chairID, err := s.store.GetOrCreatePerson(ctx, input.ChairName)
	if err != nil {
		return err
	}
	deanID, err := s.store.GetOrCreatePerson(ctx, input.DeanName)
	if err != nil {
		return err
	}
	locID, err := s.store.GetOrCreatePerson(ctx, input.LocRep)
	if err != nil {
		return err
	}
	penID, err := s.store.GetOrCreatePerson(ctx, input.PenContact)
	if err != nil {
		return err
	}
	if err := s.store.SetDivisionRoles(ctx, divisionID, chairID, deanID, locID, penID); err != nil {
		return err
	}

	for _, program := range input.ProgramList {
		if program.ProgramName == "" {
			continue
		}
		programID, err := s.store.ProgramIDByName(ctx, divisionID, program.ProgramName)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve program: %w", err)
		}
		if err := s.store.UpdateProgramFields(ctx, programID, program.HasBeenPaid, program.ReportSubmitted, program.Notes); err != nil {
			return err
		}

		payees := make(map[string]decimal.NullDecimal, len(program.Payees))
		for name, raw := range program.Payees {
			amount, err := parseAmount(raw)
			if err != nil {
				return domainError(http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), nil)
			}
			payees[name] = amount
		}
		if err := s.store.ReplacePayees(ctx, programID, payees); err != nil {
			return err
		}
	}

	s.reindexDivision(input.DivisionName)
	return nil
}

// ReviewInput marks a program under (or no longer under) review for one
// academic year.
type ReviewInput struct {
	DivisionName string `json:"divisionName"`
	ProgramName  string `json:"programName"`
	AcademicYear string `json:"academicYear"`
	UnderReview  bool   `json:"underReview"`
}

func (s *Service) SetReview(ctx context.Context, input ReviewInput) error {
	if strings.TrimSpace(input.DivisionName) == "" || strings.TrimSpace(input.ProgramName) == "" {
		return domainError(http.StatusBadRequest, "REVIEW_FIELDS_REQUIRED", "Division and program names are required", nil)
	}
	if strings.TrimSpace(input.AcademicYear) == "" {
		return domainError(http.StatusBadRequest, "ACADEMIC_YEAR_REQUIRED", "Academic year is required", nil)
	}

	divisionID, err := s.store.DivisionIDByName(ctx, input.DivisionName)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "DIVISION_NOT_FOUND", "Division not found", nil)
	}
	if err != nil {
		return fmt.Errorf("resolve division: %w", err)
	}
	programID, err := s.store.ProgramIDByName(ctx, divisionID, input.ProgramName)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "PROGRAM_NOT_FOUND", "Program not found", nil)
	}
	if err != nil {
		return fmt.Errorf("resolve program: %w", err)
	}
	return s.store.SetReview(ctx, programID, input.AcademicYear, input.UnderReview)
}

// DivisionPDF resolves a division with the tolerant lookup and renders its
// report. A division with no programs still renders a minimal document.
func (s *Service) DivisionPDF(ctx context.Context, divisionName string) (*export.Result, error) {
	division, err := s.store.FindDivisionTolerant(ctx, divisionName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusNotFound, "DIVISION_NOT_FOUND", "Division not found or has no data", nil)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.store.DivisionReportRows(ctx, division.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domainError(http.StatusNotFound, "DIVISION_NOT_FOUND", "Division not found or has no data", nil)
	}

	return export.PDF(buildDivisionReport(rows))
}

// buildDivisionReport shapes joined rows into the PDF data contract.
func buildDivisionReport(rows []store.DivisionRow) export.DivisionReport {
	views := buildDivisionViews(rows)
	if len(views) == 0 {
		return export.DivisionReport{}
	}
	view := views[0]

	report := export.DivisionReport{
		Name:       view.DivisionName,
		Dean:       view.DeanName,
		Chair:      view.ChairName,
		PenContact: view.PenContact,
		LocRep:     view.LocRep,
	}
	for _, row := range rows {
		if !row.ProgramName.Valid {
			continue
		}
		var section *export.ProgramSection
		for i := range report.Programs {
			if report.Programs[i].Name == row.ProgramName.String {
				section = &report.Programs[i]
				break
			}
		}
		if section == nil {
			report.Programs = append(report.Programs, export.ProgramSection{
				Name:  row.ProgramName.String,
				Notes: row.Notes.String,
			})
			section = &report.Programs[len(report.Programs)-1]
		}
		if row.PayeeName.Valid {
			section.Payees = append(section.Payees, export.PayeeLine{
				Name:          row.PayeeName.String,
				DisplayAmount: formatReportAmount(row.PayeeAmount),
			})
		}
	}
	return report
}

func formatReportAmount(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return "To Be Determined"
	}
	return "$" + amount.Decimal.String()
}

// Search proxies to the search facade; with no backend configured it returns
// an empty response rather than failing.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) reindexDivision(divisionName string) {
	if s.search == nil {
		return
	}
	// Data volumes are small; a full async reindex after each save keeps the
	// index consistent without tracking per-entity dirty state.
	go s.search.ReindexAllFromPG(context.Background())
}

// Session is an authenticated browser session backed by the session store.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) error {
	if s.auth == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	return s.auth.Register(ctx, req)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	if s.auth == nil || s.sessions == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}

	user, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	token := util.NewToken()
	expiresAt := s.now().Add(s.cfg.SessionTTL)
	data := session.TokenData{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		CreatedAt: s.now(),
	}
	if err := s.sessions.SaveSession(ctx, session.HashToken(token), data, expiresAt); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if s.sessions == nil {
		return Session{}, session.ErrNotFound
	}
	data, err := s.sessions.LookupSession(ctx, session.HashToken(token))
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    data.UserID,
		Username:  data.Username,
		FirstName: data.FirstName,
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if s.sessions == nil || token == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, session.HashToken(token))
}
