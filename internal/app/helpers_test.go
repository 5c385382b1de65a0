package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"divledger/api/internal/config"
	"divledger/api/internal/store"

	"github.com/shopspring/decimal"
)

var testTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func decimalNull() decimal.NullDecimal { return decimal.NullDecimal{} }

func newTestService(world *memWorld) (*Service, *fakeStore) {
	fake := &fakeStore{world: world}
	svc := &Service{
		cfg:   config.Config{SessionTTL: 12 * time.Hour},
		store: fake,
		nowFn: func() time.Time { return testTime },
	}
	return svc, fake
}

// memWorld is an in-memory stand-in for the database, shared by the fake
// store and its transactional handle.
type memWorld struct {
	nextID    int64
	divisions []*memDivision
	persons   map[int64]string
	programs  map[int64]*store.Program
	payees    map[int64][]store.Payee
	changelog []store.ChangelogEntry
	reviews   map[int64]map[string]bool
}

type memDivision struct {
	id    int64
	name  string
	roles map[string]*int64
}

func newMemWorld() *memWorld {
	return &memWorld{
		persons:  map[int64]string{},
		programs: map[int64]*store.Program{},
		payees:   map[int64][]store.Payee{},
	}
}

func (w *memWorld) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *memWorld) addDivision(name string) *memDivision {
	d := &memDivision{id: w.id(), name: name, roles: map[string]*int64{}}
	w.divisions = append(w.divisions, d)
	return d
}

func (w *memWorld) addPerson(name string) int64 {
	id := w.id()
	w.persons[id] = name
	return id
}

func (w *memWorld) addProgram(divisionID int64, name string) *store.Program {
	p := &store.Program{ID: w.id(), Name: name, DivisionID: divisionID}
	w.programs[p.ID] = p
	return p
}

func (w *memWorld) addPayee(programID int64, name string, amount decimal.NullDecimal) {
	w.payees[programID] = append(w.payees[programID], store.Payee{
		ID: w.id(), Name: name, Amount: amount, ProgramID: programID,
	})
}

func (w *memWorld) division(name string) *memDivision {
	for _, d := range w.divisions {
		if d.name == name {
			return d
		}
	}
	return nil
}

func (w *memWorld) programByName(divisionID int64, name string) *store.Program {
	for _, p := range w.programs {
		if p.DivisionID == divisionID && p.Name == name {
			return p
		}
	}
	return nil
}

func (w *memWorld) payeeAmount(programID int64, name string) (decimal.NullDecimal, bool) {
	for _, payee := range w.payees[programID] {
		if payee.Name == name {
			return payee.Amount, true
		}
	}
	return decimal.NullDecimal{}, false
}

func (w *memWorld) clone() *memWorld {
	out := newMemWorld()
	out.nextID = w.nextID
	for _, d := range w.divisions {
		cp := &memDivision{id: d.id, name: d.name, roles: map[string]*int64{}}
		for role, pid := range d.roles {
			if pid != nil {
				v := *pid
				cp.roles[role] = &v
			} else {
				cp.roles[role] = nil
			}
		}
		out.divisions = append(out.divisions, cp)
	}
	for id, name := range w.persons {
		out.persons[id] = name
	}
	for id, p := range w.programs {
		cp := *p
		out.programs[id] = &cp
	}
	for id, payees := range w.payees {
		out.payees[id] = append([]store.Payee(nil), payees...)
	}
	out.changelog = append([]store.ChangelogEntry(nil), w.changelog...)
	if w.reviews != nil {
		out.reviews = map[int64]map[string]bool{}
		for id, years := range w.reviews {
			cp := map[string]bool{}
			for year, flag := range years {
				cp[year] = flag
			}
			out.reviews[id] = cp
		}
	}
	return out
}

// fakeStore implements dataStore. ReconcileDivision runs the callback against
// a clone of the world and swaps it in only on success, mirroring transaction
// rollback.
type fakeStore struct {
	world             *memWorld
	failInsertPayee   bool
	failListChangelog error
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) ReconcileDivision(ctx context.Context, fn func(tx store.ReconcileTx) error) error {
	snapshot := f.world.clone()
	tx := &memTx{world: snapshot, failInsertPayee: f.failInsertPayee}
	if err := fn(tx); err != nil {
		return err
	}
	f.world = snapshot
	return nil
}

func (f *fakeStore) CountDivisions(ctx context.Context) (int, error) {
	return len(f.world.divisions), nil
}

func (f *fakeStore) InsertDivision(ctx context.Context, name string) (int64, error) {
	if d := f.world.division(name); d != nil {
		return d.id, nil
	}
	return f.world.addDivision(name).id, nil
}

func (f *fakeStore) ListDivisionRows(ctx context.Context) ([]store.DivisionRow, error) {
	return f.rowsFor(f.world.divisions), nil
}

func (f *fakeStore) ListEditRows(ctx context.Context, year string) ([]store.DivisionRow, error) {
	return f.rowsFor(f.world.divisions), nil
}

func (f *fakeStore) DivisionReportRows(ctx context.Context, divisionID int64) ([]store.DivisionRow, error) {
	for _, d := range f.world.divisions {
		if d.id == divisionID {
			return f.rowsFor([]*memDivision{d}), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) rowsFor(divisions []*memDivision) []store.DivisionRow {
	var rows []store.DivisionRow
	for _, d := range divisions {
		base := store.DivisionRow{
			DivisionID:   d.id,
			DivisionName: d.name,
			ChairName:    f.roleName(d, store.RoleChair),
			DeanName:     f.roleName(d, store.RoleDean),
			LocRep:       f.roleName(d, store.RoleLoc),
			PenContact:   f.roleName(d, store.RolePen),
		}

		var programs []*store.Program
		for _, p := range f.world.programs {
			if p.DivisionID == d.id {
				programs = append(programs, p)
			}
		}
		sort.Slice(programs, func(i, j int) bool { return programs[i].ID < programs[j].ID })

		if len(programs) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, p := range programs {
			row := base
			row.ProgramID = sql.NullInt64{Int64: p.ID, Valid: true}
			row.ProgramName = sql.NullString{String: p.Name, Valid: true}
			row.HasBeenPaid = sql.NullBool{Bool: p.HasBeenPaid, Valid: true}
			row.ReportSubmitted = sql.NullBool{Bool: p.ReportSubmitted, Valid: true}
			row.Notes = sql.NullString{String: p.Notes, Valid: true}

			payees := f.world.payees[p.ID]
			if len(payees) == 0 {
				rows = append(rows, row)
				continue
			}
			for _, payee := range payees {
				payeeRow := row
				payeeRow.PayeeName = sql.NullString{String: payee.Name, Valid: true}
				payeeRow.PayeeAmount = payee.Amount
				rows = append(rows, payeeRow)
			}
		}
	}
	return rows
}

func (f *fakeStore) roleName(d *memDivision, role string) sql.NullString {
	pid := d.roles[role]
	if pid == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: f.world.persons[*pid], Valid: true}
}

func (f *fakeStore) ListChangelog(ctx context.Context) ([]store.ChangelogEntry, error) {
	if f.failListChangelog != nil {
		return nil, f.failListChangelog
	}
	out := make([]store.ChangelogEntry, 0, len(f.world.changelog))
	for i := len(f.world.changelog) - 1; i >= 0; i-- {
		out = append(out, f.world.changelog[i])
	}
	return out, nil
}

func (f *fakeStore) FindDivisionTolerant(ctx context.Context, name string) (store.Division, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, d := range f.world.divisions {
		if strings.ToLower(d.name) == needle {
			return store.Division{ID: d.id, Name: d.name}, nil
		}
	}
	for _, d := range f.world.divisions {
		if strings.Contains(strings.ToLower(d.name), needle) {
			return store.Division{ID: d.id, Name: d.name}, nil
		}
	}
	return store.Division{}, sql.ErrNoRows
}

func (f *fakeStore) DivisionIDByName(ctx context.Context, name string) (int64, error) {
	if d := f.world.division(name); d != nil {
		return d.id, nil
	}
	return 0, sql.ErrNoRows
}

func (f *fakeStore) GetOrCreatePerson(ctx context.Context, name string) (*int64, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	for id, existing := range f.world.persons {
		if existing == name {
			v := id
			return &v, nil
		}
	}
	id := f.world.addPerson(name)
	return &id, nil
}

func (f *fakeStore) SetDivisionRoles(ctx context.Context, divisionID int64, chairID, deanID, locID, penID *int64) error {
	for _, d := range f.world.divisions {
		if d.id == divisionID {
			d.roles[store.RoleChair] = chairID
			d.roles[store.RoleDean] = deanID
			d.roles[store.RoleLoc] = locID
			d.roles[store.RolePen] = penID
			return nil
		}
	}
	return errors.New("division not found")
}

func (f *fakeStore) ProgramIDByName(ctx context.Context, divisionID int64, name string) (int64, error) {
	if p := f.world.programByName(divisionID, name); p != nil {
		return p.ID, nil
	}
	return 0, sql.ErrNoRows
}

func (f *fakeStore) UpdateProgramFields(ctx context.Context, programID int64, hasBeenPaid, reportSubmitted bool, notes string) error {
	p, ok := f.world.programs[programID]
	if !ok {
		return errors.New("program not found")
	}
	p.HasBeenPaid = hasBeenPaid
	p.ReportSubmitted = reportSubmitted
	p.Notes = notes
	return nil
}

func (f *fakeStore) ReplacePayees(ctx context.Context, programID int64, payees map[string]decimal.NullDecimal) error {
	f.world.payees[programID] = nil
	names := make([]string, 0, len(payees))
	for name := range payees {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.world.addPayee(programID, name, payees[name])
	}
	return nil
}

func (f *fakeStore) SetReview(ctx context.Context, programID int64, academicYear string, underReview bool) error {
	if f.world.reviews == nil {
		f.world.reviews = map[int64]map[string]bool{}
	}
	if f.world.reviews[programID] == nil {
		f.world.reviews[programID] = map[string]bool{}
	}
	f.world.reviews[programID][academicYear] = underReview
	return nil
}

// memTx implements store.ReconcileTx against a memWorld clone.
type memTx struct {
	world           *memWorld
	failInsertPayee bool
}

func (t *memTx) DivisionIDByName(ctx context.Context, name string) (int64, error) {
	if d := t.world.division(name); d != nil {
		return d.id, nil
	}
	return 0, sql.ErrNoRows
}

func (t *memTx) DivisionRolePersonID(ctx context.Context, divisionID int64, role string) (*int64, error) {
	for _, d := range t.world.divisions {
		if d.id == divisionID {
			pid := d.roles[role]
			if pid == nil {
				return nil, nil
			}
			v := *pid
			return &v, nil
		}
	}
	return nil, errors.New("division not found")
}

func (t *memTx) AssignDivisionRole(ctx context.Context, divisionID int64, role string, personID int64) error {
	for _, d := range t.world.divisions {
		if d.id == divisionID {
			d.roles[role] = &personID
			return nil
		}
	}
	return errors.New("division not found")
}

func (t *memTx) PersonName(ctx context.Context, personID int64) (string, error) {
	name, ok := t.world.persons[personID]
	if !ok {
		return "", errors.New("person not found")
	}
	return name, nil
}

func (t *memTx) RenamePerson(ctx context.Context, personID int64, name string) error {
	if _, ok := t.world.persons[personID]; !ok {
		return errors.New("person not found")
	}
	t.world.persons[personID] = name
	return nil
}

func (t *memTx) GetOrCreatePerson(ctx context.Context, name string) (int64, error) {
	for id, existing := range t.world.persons {
		if existing == name {
			return id, nil
		}
	}
	return t.world.addPerson(name), nil
}

func (t *memTx) ProgramByName(ctx context.Context, divisionID int64, name string) (*store.Program, error) {
	if p := t.world.programByName(divisionID, name); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) InsertProgram(ctx context.Context, p store.Program) (int64, error) {
	p.ID = t.world.id()
	cp := p
	t.world.programs[p.ID] = &cp
	return p.ID, nil
}

func (t *memTx) UpdateProgram(ctx context.Context, p store.Program) error {
	if _, ok := t.world.programs[p.ID]; !ok {
		return errors.New("program not found")
	}
	cp := p
	t.world.programs[p.ID] = &cp
	return nil
}

func (t *memTx) DeleteProgram(ctx context.Context, programID int64) error {
	delete(t.world.programs, programID)
	return nil
}

func (t *memTx) ProgramPayees(ctx context.Context, programID int64) ([]store.Payee, error) {
	return append([]store.Payee(nil), t.world.payees[programID]...), nil
}

func (t *memTx) InsertPayee(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error {
	if t.failInsertPayee {
		return errors.New("payee insert failed")
	}
	t.world.addPayee(programID, name, amount)
	return nil
}

func (t *memTx) UpdatePayeeAmount(ctx context.Context, programID int64, name string, amount decimal.NullDecimal) error {
	payees := t.world.payees[programID]
	for i := range payees {
		if payees[i].Name == name {
			payees[i].Amount = amount
			return nil
		}
	}
	return errors.New("payee not found")
}

func (t *memTx) DeletePayee(ctx context.Context, programID int64, name string) error {
	payees := t.world.payees[programID]
	for i := range payees {
		if payees[i].Name == name {
			t.world.payees[programID] = append(payees[:i], payees[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) DeleteProgramPayees(ctx context.Context, programID int64) error {
	delete(t.world.payees, programID)
	return nil
}

func (t *memTx) InsertChangelog(ctx context.Context, saveTime time.Time, changes string) error {
	t.world.changelog = append(t.world.changelog, store.ChangelogEntry{
		ID:       t.world.id(),
		SaveTime: saveTime,
		Changes:  changes,
	})
	return nil
}
