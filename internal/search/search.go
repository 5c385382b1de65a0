// Package search provides full-text search over divisions, programs, and
// payees, preferring Meilisearch with a PostgreSQL FTS fallback.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDivision ResultType = "division"
	ResultProgram  ResultType = "program"
	ResultPayee    ResultType = "payee"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	DivisionName string     `json:"divisionName"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DivisionRecord is the data we index for a division.
type DivisionRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Dean       string `json:"dean"`
	Chair      string `json:"chair"`
	PenContact string `json:"penContact"`
	LocRep     string `json:"locRep"`
}

// ProgramRecord is the data we index for a program.
type ProgramRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Notes        string `json:"notes"`
	DivisionName string `json:"divisionName"`
}

// PayeeRecord is the data we index for a payee.
type PayeeRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProgramName  string `json:"programName"`
	DivisionName string `json:"divisionName"`
}
