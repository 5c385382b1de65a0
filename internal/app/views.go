package app

import (
	"divledger/api/internal/store"
)

// DivisionView is the nested shape the home and edit pages consume.
type DivisionView struct {
	ID           int64         `json:"id"`
	DivisionName string        `json:"divisionName"`
	DeanName     string        `json:"deanName"`
	ChairName    string        `json:"chairName"`
	PenContact   string        `json:"penContact"`
	LocRep       string        `json:"locRep"`
	ProgramList  []ProgramView `json:"programList"`
}

type ProgramView struct {
	ProgramName     string `json:"programName"`
	HasBeenPaid     bool   `json:"hasBeenPaid"`
	ReportSubmitted bool   `json:"reportSubmitted"`
	UnderReview     bool   `json:"underReview"`
	Notes           string `json:"notes"`
	// Amounts are numbers; a NULL amount is the string "To Be Determined".
	Payees map[string]any `json:"payees"`
}

// buildDivisionViews groups the flat join rows into per-division views,
// preserving the query's ordering (division, program, payee).
func buildDivisionViews(rows []store.DivisionRow) []DivisionView {
	views := make([]DivisionView, 0)
	index := make(map[int64]int)

	for _, row := range rows {
		pos, ok := index[row.DivisionID]
		if !ok {
			views = append(views, DivisionView{
				ID:           row.DivisionID,
				DivisionName: row.DivisionName,
				DeanName:     row.DeanName.String,
				ChairName:    row.ChairName.String,
				PenContact:   row.PenContact.String,
				LocRep:       row.LocRep.String,
				ProgramList:  []ProgramView{},
			})
			pos = len(views) - 1
			index[row.DivisionID] = pos
		}

		if !row.ProgramName.Valid {
			continue
		}
		division := &views[pos]

		var program *ProgramView
		for i := range division.ProgramList {
			if division.ProgramList[i].ProgramName == row.ProgramName.String {
				program = &division.ProgramList[i]
				break
			}
		}
		if program == nil {
			division.ProgramList = append(division.ProgramList, ProgramView{
				ProgramName:     row.ProgramName.String,
				HasBeenPaid:     row.HasBeenPaid.Bool,
				ReportSubmitted: row.ReportSubmitted.Bool,
				UnderReview:     row.UnderReview.Bool,
				Notes:           row.Notes.String,
				Payees:          map[string]any{},
			})
			program = &division.ProgramList[len(division.ProgramList)-1]
		}

		if row.PayeeName.Valid {
			program.Payees[row.PayeeName.String] = displayAmount(row.PayeeAmount)
		}
	}

	return views
}
