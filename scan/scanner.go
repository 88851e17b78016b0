// Package scan drives the workbook link audit: it enumerates candidate
// files, opens each one through a document host, and folds the per-file
// outcomes into a flat report. One bad file never aborts the batch; it
// becomes an error row and the scan moves on.
package scan

import (
	"context"
	"fmt"
	"regexp"

	"github.com/estatescan/xlinks/document"
)

// Request describes one scan.
type Request struct {
	// Root is the directory to scan. It must exist and be a directory.
	Root string

	// Filter is a filename glob candidates must match, e.g. "*.xls". Empty
	// means every file.
	Filter string

	// Match, when non-nil, keeps only link targets the expression matches.
	// It narrows reported links, never which files are opened.
	Match *regexp.Regexp

	// Recurse descends into subdirectories. MaxDepth bounds the descent:
	// 0 keeps to the root, N admits files up to N levels below it, and a
	// negative value means unbounded. MaxDepth is ignored unless Recurse
	// is set.
	Recurse  bool
	MaxDepth int

	// Format is the open-format code forwarded to the host.
	Format int

	// Password unlocks encrypted workbooks.
	Password string

	// DryRun enumerates and reports the would-be work without opening a
	// single workbook.
	DryRun bool
}

// Row is one line of the report. Exactly one of Link and Exception is set:
// a workbook with N links produces N link rows, a workbook that failed
// produces one exception row, and a clean workbook without links produces
// no rows at all.
type Row struct {
	Workbook  string `json:"workbook"`
	Link      string `json:"link,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// Result is the outcome of one scan.
type Result struct {
	Rows    []Row `json:"rows"`
	Total   int   `json:"total"`   // files enumerated
	Scanned int   `json:"scanned"` // files actually opened
	Skipped int   `json:"skipped"` // files skipped by dry-run or a declined confirmation
	Failed  int   `json:"failed"`  // files that produced an exception row
}

// Scanner runs scans against a document host. The zero value is not usable:
// NewHost must be set. Progress and Confirm are optional hooks; both are
// called on the scanning goroutine.
type Scanner struct {
	// NewHost acquires the session's document host. It is called once per
	// Run, before any file is touched, so a host that cannot start fails
	// the scan before work begins.
	NewHost func() (document.Host, error)

	// Progress, if set, is called once per enumerated file after it has
	// been handled, whether it was scanned or skipped. index is 1-based.
	Progress func(index, total int, path string)

	// Confirm, if set, gates each workbook open. Returning false skips the
	// file. Dry runs never consult Confirm.
	Confirm func(description string) bool
}

// Run executes one scan. The host is shut down on every return path,
// including cancellation. On cancellation Run returns the partial result
// alongside the context's error so callers can still report what completed.
func (s *Scanner) Run(ctx context.Context, req Request) (*Result, error) {
	host, err := s.NewHost()
	if err != nil {
		return nil, fmt.Errorf("starting document host: %w", err)
	}
	defer host.Shutdown()

	files, err := Enumerate(req.Root, req.Filter, req.Recurse, req.MaxDepth)
	if err != nil {
		return nil, err
	}

	// Rows starts empty, not nil, so a row-less result encodes as [].
	res := &Result{Rows: []Row{}, Total: len(files)}
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch {
		case req.DryRun:
			res.Skipped++
		case s.Confirm != nil && !s.Confirm("scan "+path):
			res.Skipped++
		default:
			rows, failed := scanFile(host, path, req)
			res.Rows = append(res.Rows, rows...)
			res.Scanned++
			if failed {
				res.Failed++
			}
		}
		if s.Progress != nil {
			s.Progress(i+1, len(files), path)
		}
	}
	return res, nil
}

// scanFile opens one workbook, pulls its link targets and closes it before
// the next file is touched. Any failure collapses into a single exception
// row for the file.
func scanFile(host document.Host, path string, req Request) ([]Row, bool) {
	doc, err := host.Open(path, document.OpenOptions{Password: req.Password, Format: req.Format})
	if err != nil {
		return []Row{{Workbook: path, Exception: err.Error()}}, true
	}

	targets, err := doc.LinkTargets()
	_ = doc.Close() // always, before the next file is opened
	if err != nil {
		return []Row{{Workbook: path, Exception: err.Error()}}, true
	}

	rows := make([]Row, 0, len(targets))
	for _, target := range targets {
		if req.Match != nil && !req.Match.MatchString(target) {
			continue
		}
		rows = append(rows, Row{Workbook: path, Link: target})
	}
	return rows, false
}
