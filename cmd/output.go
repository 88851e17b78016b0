package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/estatescan/xlinks/scan"
)

// ExitError signals a non-zero exit code without printing an error message.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return "" }

func jsonPrint(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCSV serializes report rows with a fixed header. Error rows carry the
// exception column, link rows the link column; never both.
func writeCSV(w io.Writer, rows []scan.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Workbook", "Link", "Exception"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Workbook, r.Link, r.Exception}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// saveCSV writes report rows to a file, creating or truncating it.
func saveCSV(path string, rows []scan.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := writeCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// printRows writes the human-readable report: link rows first-come, error
// rows marked so they stand out in a long listing.
func printRows(rows []scan.Row) {
	for _, r := range rows {
		if r.Exception != "" {
			fmt.Printf("%-50s  ERROR  %s\n", r.Workbook, r.Exception)
			continue
		}
		fmt.Printf("%-50s  ->  %s\n", r.Workbook, r.Link)
	}
}

// printScanSummary prints the one-line batch summary.
func printScanSummary(res *scan.Result) {
	links := 0
	for _, r := range res.Rows {
		if r.Exception == "" {
			links++
		}
	}
	fmt.Printf("%d file", res.Scanned)
	if res.Scanned != 1 {
		fmt.Print("s")
	}
	fmt.Printf(" scanned, %d link", links)
	if links != 1 {
		fmt.Print("s")
	}
	fmt.Printf(", %d error", res.Failed)
	if res.Failed != 1 {
		fmt.Print("s")
	}
	if res.Skipped > 0 {
		fmt.Printf(", %d skipped", res.Skipped)
	}
	fmt.Println()
}
