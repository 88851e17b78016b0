// Package document opens spreadsheet workbooks and extracts their external
// link targets. It is a pure file-format reader: no spreadsheet application
// is launched, nothing is written back, and linked data is never refreshed.
package document

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers for per-file classification.
var (
	// ErrNotWorkbook means the file is not a spreadsheet workbook in any
	// format this package reads.
	ErrNotWorkbook = errors.New("not a spreadsheet workbook")

	// ErrPasswordRequired means the workbook is encrypted and no usable
	// password was supplied.
	ErrPasswordRequired = errors.New("workbook is password-protected")

	// ErrLegacyWorkbook means the file is a BIFF5/BIFF7 workbook written by
	// Excel 5.0/95, which predates the external-link records this package
	// understands.
	ErrLegacyWorkbook = errors.New("legacy Excel 5.0/95 workbook not supported")
)

// OpenOptions carries per-open parameters.
type OpenOptions struct {
	// Password unlocks encrypted OOXML workbooks. Legacy BIFF encryption is
	// not supported.
	Password string

	// Format is the operator-supplied open-format code, carried through from
	// the request. The file host identifies content by magic bytes and keeps
	// the code as a hint only; other hosts may forward it verbatim.
	Format int
}

// Workbook is one open document. LinkTargets returns the workbook's external
// link targets in the order the file records them; a workbook without
// external links yields an empty slice. Close releases the document without
// saving and is safe to call more than once.
type Workbook interface {
	LinkTargets() ([]string, error)
	Close() error
}

// Host opens workbooks for the duration of one scan session. Implementations
// own whatever session-wide resources opening requires and release them in
// Shutdown; callers must run Shutdown on every exit path once a host exists.
type Host interface {
	Open(path string, opts OpenOptions) (Workbook, error)
	Shutdown() error
}

// FileHost reads workbooks straight from their on-disk formats: OOXML
// packages (.xlsx, .xlsm, .xlsb) and OLE2/BIFF8 (.xls). It is not safe for
// concurrent use; the scan loop drives it strictly one file at a time.
type FileHost struct {
	shutdown bool
}

// NewFileHost returns a host that opens workbooks as plain files.
func NewFileHost() *FileHost {
	return &FileHost{}
}

// Open dispatches on the file's container magic, never on its extension.
func (h *FileHost) Open(path string, opts OpenOptions) (Workbook, error) {
	if h.shutdown {
		return nil, errors.New("document host is shut down")
	}

	kind, err := sniffContainer(path)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}

	switch kind {
	case containerZIP:
		return openPackage(path, opts)
	case containerOLE2:
		return openCompound(path, opts)
	default:
		return nil, ErrNotWorkbook
	}
}

// Shutdown ends the session. An application-automation host would quit its
// application here; the file host has nothing to release, so it only marks
// itself unusable.
func (h *FileHost) Shutdown() error {
	h.shutdown = true
	return nil
}
