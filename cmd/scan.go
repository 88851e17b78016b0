package cmd

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/estatescan/xlinks/config"
	"github.com/estatescan/xlinks/document"
	"github.com/estatescan/xlinks/scan"
)

var (
	scanFilter        string
	scanMatch         string
	scanRecurse       bool
	scanDepth         int
	scanFormat        int
	scanPassword      string
	scanDryRun        bool
	scanConfirm       bool
	scanOutput        string
	scanQuiet         bool
	scanSaveDefaults  bool
	scanClearDefaults bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan a directory tree for workbooks with external links",
	Long: `Walk a directory tree, open every matching workbook and report each
external link target as one row. A workbook that cannot be opened or read
becomes an error row; the batch always runs to the end.

Formats are detected by content, not extension: OOXML packages (.xlsx,
.xlsm, .xlsb) and legacy BIFF8 (.xls) are all read. The default filter
only matches *.xls; widen it for mixed estates.

Exit codes:
  0  scan completed, no per-file errors
  1  scan could not run (bad path, interrupted)
  2  scan completed but some files produced error rows

Examples:
  xlinks scan /srv/reports                         # audit with defaults
  xlinks scan /srv/reports --filter "*.xls*"       # include OOXML extensions
  xlinks scan /srv/reports --depth 1 -o links.csv  # shallow scan, CSV report
  xlinks scan /srv/reports --match "fs01"          # only links mentioning fs01
  xlinks scan /srv/reports --dry-run               # list the would-be work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFilter, "filter", "*.xls", "Filename glob candidates must match")
	scanCmd.Flags().StringVar(&scanMatch, "match", "", "Regexp link targets must match to be reported")
	scanCmd.Flags().BoolVar(&scanRecurse, "recurse", true, "Descend into subdirectories")
	scanCmd.Flags().IntVar(&scanDepth, "depth", -1, "Max directory levels below the root (-1 = unbounded)")
	scanCmd.Flags().IntVar(&scanFormat, "format", 2, "Open-format code forwarded to the document host")
	addPasswordFlag(scanCmd.Flags(), &scanPassword)
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "List what would be scanned without opening anything")
	scanCmd.Flags().BoolVar(&scanConfirm, "confirm", false, "Ask before each workbook is opened")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write the report to a CSV file")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Suppress per-file progress on stderr")
	scanCmd.Flags().BoolVar(&scanSaveDefaults, "save-defaults", false, "Save the effective filter/match/recurse/depth/format as defaults")
	scanCmd.Flags().BoolVar(&scanClearDefaults, "clear-defaults", false, "Clear saved defaults")
	rootCmd.AddCommand(scanCmd)
}

// applyDefaults overlays saved defaults onto flags the operator left
// untouched. Explicit flags always win over the config file.
func applyDefaults(fs *pflag.FlagSet, cfg config.Config) {
	if cfg.Filter != "" && !fs.Changed("filter") {
		scanFilter = cfg.Filter
	}
	if cfg.Match != "" && !fs.Changed("match") {
		scanMatch = cfg.Match
	}
	if cfg.Recurse != nil && !fs.Changed("recurse") {
		scanRecurse = *cfg.Recurse
	}
	if cfg.Depth != nil && !fs.Changed("depth") {
		scanDepth = *cfg.Depth
	}
	if cfg.Format != nil && !fs.Changed("format") {
		scanFormat = *cfg.Format
	}
}

func promptConfirm(r *bufio.Reader) func(string) bool {
	return func(description string) bool {
		fmt.Fprintf(os.Stderr, "%s? [y/N] ", description)
		line, err := r.ReadString('\n')
		if err != nil {
			return false
		}
		line = strings.TrimSpace(line)
		return strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if scanClearDefaults {
		if err := config.Delete(); err != nil {
			return fmt.Errorf("clearing saved defaults: %w", err)
		}
		if len(args) == 0 {
			fmt.Println("Saved defaults cleared")
			return nil
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("requires a scan path")
	}
	root := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "note: ignoring saved defaults: %v\n", err)
		cfg = config.Config{}
	}
	applyDefaults(cmd.Flags(), cfg)

	if scanSaveDefaults {
		recurse, depth, format := scanRecurse, scanDepth, scanFormat
		saved := config.Config{
			Filter:  scanFilter,
			Match:   scanMatch,
			Recurse: &recurse,
			Depth:   &depth,
			Format:  &format,
		}
		if err := config.Save(saved); err != nil {
			return fmt.Errorf("saving defaults: %w", err)
		}
	}

	var matchRE *regexp.Regexp
	if scanMatch != "" {
		matchRE, err = regexp.Compile(scanMatch)
		if err != nil {
			return fmt.Errorf("link match expression: %w", err)
		}
	}

	var confirm func(string) bool
	if scanConfirm {
		confirm = promptConfirm(bufio.NewReader(os.Stdin))
	}
	var progress func(int, int, string)
	if !scanQuiet {
		progress = func(i, n int, path string) {
			if scanDryRun {
				fmt.Fprintf(os.Stderr, "[%d/%d] would scan %s\n", i, n, path)
				return
			}
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", i, n, path)
		}
	}

	sc := &scan.Scanner{
		NewHost: func() (document.Host, error) {
			return document.NewFileHost(), nil
		},
		Progress: progress,
		Confirm:  confirm,
	}
	req := scan.Request{
		Root:     root,
		Filter:   scanFilter,
		Match:    matchRE,
		Recurse:  scanRecurse,
		MaxDepth: scanDepth,
		Format:   scanFormat,
		Password: resolvePassword(scanPassword),
		DryRun:   scanDryRun,
	}

	res, err := sc.Run(cmd.Context(), req)
	if err != nil {
		if res == nil {
			return err
		}
		// Interrupted mid-batch: report what completed, then exit non-zero.
		fmt.Fprintf(os.Stderr, "scan interrupted: %v\n", err)
	}
	interrupted := err != nil

	if scanDryRun {
		if jsonOutput {
			if err := jsonPrint(res); err != nil {
				return err
			}
		} else {
			fmt.Printf("%d file", res.Total)
			if res.Total != 1 {
				fmt.Print("s")
			}
			fmt.Println(" would be scanned")
		}
		if interrupted {
			return &ExitError{Code: 1}
		}
		return nil
	}

	if jsonOutput {
		if err := jsonPrint(res); err != nil {
			return err
		}
	} else {
		printRows(res.Rows)
		printScanSummary(res)
	}

	if scanOutput != "" {
		if err := saveCSV(scanOutput, res.Rows); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", scanOutput)
	}

	switch {
	case interrupted:
		return &ExitError{Code: 1}
	case res.Failed > 0:
		return &ExitError{Code: 2}
	default:
		return nil
	}
}
