// Package export renders division funding reports as PDF documents.
package export

import "errors"

// PayeeLine is a single funded payee within a program section.
type PayeeLine struct {
	Name          string
	DisplayAmount string
}

// ProgramSection is one program block in the report.
type ProgramSection struct {
	Name   string
	Payees []PayeeLine
	Notes  string
}

// DivisionReport is the full data contract for a rendered report.
type DivisionReport struct {
	Name       string
	Dean       string
	Chair      string
	PenContact string
	LocRep     string
	Programs   []ProgramSection
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
