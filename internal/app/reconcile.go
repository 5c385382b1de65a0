package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"divledger/api/internal/store"
)

// ProgramPayload is one desired program state in a full-update request.
// Payee amounts arrive as numbers, numeric strings, "" or null.
type ProgramPayload struct {
	ProgramName     string         `json:"programName"`
	HasBeenPaid     bool           `json:"hasBeenPaid"`
	ReportSubmitted bool           `json:"reportSubmitted"`
	Notes           string         `json:"notes"`
	Payees          map[string]any `json:"payees"`
}

type MovedProgramPayload struct {
	TargetDivision string `json:"targetDivision"`
	ProgramPayload
}

type RenamedProgramPayload struct {
	OldProgramName string `json:"oldProgramName"`
	ProgramPayload
}

// FullUpdateInput is the desired-state snapshot for one division.
type FullUpdateInput struct {
	DivisionName    string                  `json:"divisionName"`
	Chair           string                  `json:"chair"`
	Dean            string                  `json:"dean"`
	Loc             string                  `json:"loc"`
	Pen             string                  `json:"pen"`
	Programs        []ProgramPayload        `json:"programs"`
	DeletedPrograms []string                `json:"deletedPrograms"`
	MovedPrograms   []MovedProgramPayload   `json:"movedPrograms"`
	RenamedPrograms []RenamedProgramPayload `json:"renamedPrograms"`
}

// ItemResult tags the outcome of one batch item. Secondary lookup misses
// inside a phase skip the item rather than aborting the save.
type ItemResult struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

const (
	itemApplied = "applied"
	itemSkipped = "skipped"
)

type FullUpdateResult struct {
	Summary string       `json:"summary"`
	Items   []ItemResult `json:"results"`
}

// FullUpdate reconciles a division's stored state against the submitted
// snapshot. All mutations plus the changelog insert run in one transaction;
// any failure rolls everything back.
func (s *Service) FullUpdate(ctx context.Context, input FullUpdateInput) (FullUpdateResult, error) {
	if strings.TrimSpace(input.DivisionName) == "" {
		return FullUpdateResult{}, domainError(http.StatusBadRequest, "DIVISION_NAME_REQUIRED", "Division name is required", nil)
	}

	var result FullUpdateResult
	err := s.store.ReconcileDivision(ctx, func(tx store.ReconcileTx) error {
		r := &reconciler{tx: tx, saveTime: s.now()}
		out, err := r.run(ctx, input)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return FullUpdateResult{}, err
	}

	s.reindexDivision(input.DivisionName)
	return result, nil
}

type reconciler struct {
	tx       store.ReconcileTx
	saveTime time.Time

	lines   []string
	items   []ItemResult
	handled map[int64]bool
}

func (r *reconciler) run(ctx context.Context, input FullUpdateInput) (FullUpdateResult, error) {
	r.handled = make(map[int64]bool)

	divisionID, err := r.tx.DivisionIDByName(ctx, input.DivisionName)
	if errors.Is(err, sql.ErrNoRows) {
		return FullUpdateResult{}, domainError(http.StatusNotFound, "DIVISION_NOT_FOUND", "Division not found", nil)
	}
	if err != nil {
		return FullUpdateResult{}, fmt.Errorf("resolve division: %w", err)
	}

	if err := r.applyPersonnel(ctx, divisionID, input); err != nil {
		return FullUpdateResult{}, err
	}
	if err := r.applyCreated(ctx, divisionID, input.Programs); err != nil {
		return FullUpdateResult{}, err
	}
	if err := r.applyRenamed(ctx, divisionID, input.RenamedPrograms); err != nil {
		return FullUpdateResult{}, err
	}
	if err := r.applyMoved(ctx, divisionID, input.MovedPrograms); err != nil {
		return FullUpdateResult{}, err
	}
	if err := r.applyDeleted(ctx, divisionID, input.DeletedPrograms); err != nil {
		return FullUpdateResult{}, err
	}
	if err := r.applyUpdates(ctx, divisionID, input.Programs); err != nil {
		return FullUpdateResult{}, err
	}

	// A save that changed nothing leaves no changelog row behind.
	if len(r.lines) == 0 {
		return FullUpdateResult{Summary: "", Items: r.items}, nil
	}

	header := fmt.Sprintf("%s | %s", r.saveTime.Format("2006-01-02 15:04:05"), input.DivisionName)
	summary := header + "\n" + strings.Join(r.lines, "\n")
	if err := r.tx.InsertChangelog(ctx, r.saveTime, summary); err != nil {
		return FullUpdateResult{}, err
	}
	return FullUpdateResult{Summary: summary, Items: r.items}, nil
}

// applyPersonnel handles the four contact roles. A role with a current
// assignee and a different incoming name renames the shared person row;
// an empty role slot gets a person resolved (or created) by name.
func (r *reconciler) applyPersonnel(ctx context.Context, divisionID int64, input FullUpdateInput) error {
	roles := []struct {
		role string
		name string
	}{
		{store.RoleChair, input.Chair},
		{store.RoleDean, input.Dean},
		{store.RoleLoc, input.Loc},
		{store.RolePen, input.Pen},
	}

	var changes []string
	for _, entry := range roles {
		if strings.TrimSpace(entry.name) == "" {
			continue
		}

		currentID, err := r.tx.DivisionRolePersonID(ctx, divisionID, entry.role)
		if err != nil {
			return err
		}

		label := strings.ToUpper(entry.role)
		if currentID != nil {
			currentName, err := r.tx.PersonName(ctx, *currentID)
			if err != nil {
				return err
			}
			if currentName == entry.name {
				continue
			}
			if err := r.tx.RenamePerson(ctx, *currentID, entry.name); err != nil {
				return err
			}
			changes = append(changes, fmt.Sprintf("%s: %q → %q", label, currentName, entry.name))
			continue
		}

		personID, err := r.tx.GetOrCreatePerson(ctx, entry.name)
		if err != nil {
			return err
		}
		if err := r.tx.AssignDivisionRole(ctx, divisionID, entry.role, personID); err != nil {
			return err
		}
		changes = append(changes, fmt.Sprintf("%s: %q → %q", label, "None", entry.name))
	}

	if len(changes) > 0 {
		r.lines = append(r.lines, "Division Changes: "+input.DivisionName)
		r.lines = append(r.lines, indent(changes)...)
	}
	return nil
}

func (r *reconciler) applyCreated(ctx context.Context, divisionID int64, programs []ProgramPayload) error {
	for _, prog := range programs {
		existing, err := r.tx.ProgramByName(ctx, divisionID, prog.ProgramName)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		programID, err := r.tx.InsertProgram(ctx, store.Program{
			Name:            prog.ProgramName,
			DivisionID:      divisionID,
			HasBeenPaid:     prog.HasBeenPaid,
			ReportSubmitted: prog.ReportSubmitted,
			Notes:           prog.Notes,
		})
		if err != nil {
			return err
		}

		payeeChanges, err := r.applyPayees(ctx, programID, prog.Payees)
		if err != nil {
			return err
		}

		r.lines = append(r.lines, "Created Program: "+prog.ProgramName)
		r.lines = append(r.lines, indent(payeeChanges)...)
		r.handled[programID] = true
		r.items = append(r.items, ItemResult{Kind: "program", Name: prog.ProgramName, Status: itemApplied})
	}
	return nil
}

func (r *reconciler) applyRenamed(ctx context.Context, divisionID int64, renamed []RenamedProgramPayload) error {
	for _, item := range renamed {
		existing, err := r.tx.ProgramByName(ctx, divisionID, item.OldProgramName)
		if err != nil {
			return err
		}
		if existing == nil {
			// Stale client state; skip this one item and keep going.
			r.items = append(r.items, ItemResult{Kind: "rename", Name: item.OldProgramName, Status: itemSkipped, Reason: "program not found"})
			continue
		}

		var changes []string
		if existing.Name != item.ProgramName {
			changes = append(changes, fmt.Sprintf("Renamed Program: %q → %q", item.OldProgramName, item.ProgramName))
		}
		changes = append(changes, r.fieldChanges(existing, item.ProgramPayload)...)

		payeeChanges, err := r.applyPayees(ctx, existing.ID, item.Payees)
		if err != nil {
			return err
		}

		if err := r.tx.UpdateProgram(ctx, store.Program{
			ID:              existing.ID,
			Name:            item.ProgramName,
			DivisionID:      divisionID,
			HasBeenPaid:     item.HasBeenPaid,
			ReportSubmitted: item.ReportSubmitted,
			Notes:           item.Notes,
		}); err != nil {
			return err
		}

		r.lines = append(r.lines, changes...)
		r.lines = append(r.lines, indent(payeeChanges)...)
		r.handled[existing.ID] = true
		r.items = append(r.items, ItemResult{Kind: "rename", Name: item.ProgramName, Status: itemApplied})
	}
	return nil
}

func (r *reconciler) applyMoved(ctx context.Context, divisionID int64, moved []MovedProgramPayload) error {
	for _, item := range moved {
		targetID, err := r.tx.DivisionIDByName(ctx, item.TargetDivision)
		if errors.Is(err, sql.ErrNoRows) {
			r.items = append(r.items, ItemResult{Kind: "move", Name: item.ProgramName, Status: itemSkipped, Reason: "target division not found"})
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve target division: %w", err)
		}

		existing, err := r.tx.ProgramByName(ctx, divisionID, item.ProgramName)
		if err != nil {
			return err
		}
		if existing == nil {
			r.items = append(r.items, ItemResult{Kind: "move", Name: item.ProgramName, Status: itemSkipped, Reason: "program not found"})
			continue
		}

		var changes []string
		if existing.DivisionID != targetID {
			changes = append(changes, fmt.Sprintf("Moved Program: %q → Division: %s", item.ProgramName, item.TargetDivision))
		}
		changes = append(changes, r.fieldChanges(existing, item.ProgramPayload)...)

		payeeChanges, err := r.applyPayees(ctx, existing.ID, item.Payees)
		if err != nil {
			return err
		}

		if err := r.tx.UpdateProgram(ctx, store.Program{
			ID:              existing.ID,
			Name:            existing.Name,
			DivisionID:      targetID,
			HasBeenPaid:     item.HasBeenPaid,
			ReportSubmitted: item.ReportSubmitted,
			Notes:           item.Notes,
		}); err != nil {
			return err
		}

		r.lines = append(r.lines, changes...)
		r.lines = append(r.lines, indent(payeeChanges)...)
		r.handled[existing.ID] = true
		r.items = append(r.items, ItemResult{Kind: "move", Name: item.ProgramName, Status: itemApplied})
	}
	return nil
}

func (r *reconciler) applyDeleted(ctx context.Context, divisionID int64, deleted []string) error {
	for _, name := range deleted {
		existing, err := r.tx.ProgramByName(ctx, divisionID, name)
		if err != nil {
			return err
		}
		if existing == nil {
			r.items = append(r.items, ItemResult{Kind: "delete", Name: name, Status: itemSkipped, Reason: "program not found"})
			continue
		}

		payees, err := r.tx.ProgramPayees(ctx, existing.ID)
		if err != nil {
			return err
		}
		if err := r.tx.DeleteProgramPayees(ctx, existing.ID); err != nil {
			return err
		}
		if err := r.tx.DeleteProgram(ctx, existing.ID); err != nil {
			return err
		}

		r.lines = append(r.lines, "Deleted Program: "+name)
		if len(payees) > 0 {
			names := make([]string, 0, len(payees))
			for _, payee := range payees {
				names = append(names, payee.Name)
			}
			sort.Strings(names)
			r.lines = append(r.lines, "  Removed Payees: "+strings.Join(names, ", "))
		}
		r.handled[existing.ID] = true
		r.items = append(r.items, ItemResult{Kind: "delete", Name: name, Status: itemApplied})
	}
	return nil
}

// applyUpdates is the catch-all phase: programs in the snapshot not touched
// by an earlier phase get their fields and payees diffed in place. A program
// with no differences emits no changelog lines.
func (r *reconciler) applyUpdates(ctx context.Context, divisionID int64, programs []ProgramPayload) error {
	for _, prog := range programs {
		existing, err := r.tx.ProgramByName(ctx, divisionID, prog.ProgramName)
		if err != nil {
			return err
		}
		if existing == nil || r.handled[existing.ID] {
			continue
		}

		changes := r.fieldChanges(existing, prog)
		payeeChanges, err := r.applyPayees(ctx, existing.ID, prog.Payees)
		if err != nil {
			return err
		}
		if len(changes) == 0 && len(payeeChanges) == 0 {
			continue
		}

		if err := r.tx.UpdateProgram(ctx, store.Program{
			ID:              existing.ID,
			Name:            existing.Name,
			DivisionID:      existing.DivisionID,
			HasBeenPaid:     prog.HasBeenPaid,
			ReportSubmitted: prog.ReportSubmitted,
			Notes:           prog.Notes,
		}); err != nil {
			return err
		}

		r.lines = append(r.lines, "Updated Program: "+prog.ProgramName)
		r.lines = append(r.lines, indent(changes)...)
		r.lines = append(r.lines, indent(payeeChanges)...)
		r.items = append(r.items, ItemResult{Kind: "program", Name: prog.ProgramName, Status: itemApplied})
	}
	return nil
}

func (r *reconciler) fieldChanges(existing *store.Program, incoming ProgramPayload) []string {
	var changes []string
	if existing.HasBeenPaid != incoming.HasBeenPaid {
		changes = append(changes, "Paid status changed")
	}
	if existing.ReportSubmitted != incoming.ReportSubmitted {
		changes = append(changes, "Report status changed")
	}
	if existing.Notes != incoming.Notes {
		changes = append(changes, "Notes updated")
	}
	return changes
}

// applyPayees diffs a program's stored payees against the incoming map and
// applies only the necessary mutations. Names absent from the snapshot are
// removed, new names inserted, and differing amounts updated in place.
func (r *reconciler) applyPayees(ctx context.Context, programID int64, incoming map[string]any) ([]string, error) {
	current, err := r.tx.ProgramPayees(ctx, programID)
	if err != nil {
		return nil, err
	}
	currentByName := make(map[string]store.Payee, len(current))
	for _, payee := range current {
		currentByName[payee.Name] = payee
	}

	var changes []string

	removed := make([]string, 0)
	for name := range currentByName {
		if _, ok := incoming[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	for _, name := range removed {
		if err := r.tx.DeletePayee(ctx, programID, name); err != nil {
			return nil, err
		}
		changes = append(changes, "Removed Payee: "+name)
	}

	names := make([]string, 0, len(incoming))
	for name := range incoming {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		amount, err := parseAmount(incoming[name])
		if err != nil {
			return nil, err
		}
		existing, ok := currentByName[name]
		if !ok {
			if err := r.tx.InsertPayee(ctx, programID, name, amount); err != nil {
				return nil, err
			}
			changes = append(changes, "Added Payee: "+name)
			continue
		}
		if !amountsEqual(existing.Amount, amount) {
			if err := r.tx.UpdatePayeeAmount(ctx, programID, name, amount); err != nil {
				return nil, err
			}
			changes = append(changes, "Updated Payee: "+name)
		}
	}

	return changes, nil
}

func indent(lines []string) []string {
	indented := make([]string, 0, len(lines))
	for _, line := range lines {
		indented = append(indented, "  "+line)
	}
	return indented
}
