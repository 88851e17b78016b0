package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/estatescan/xlinks/document"
)

var (
	linksPassword string
	linksFormat   int
	linksMatch    string
)

var linksCmd = &cobra.Command{
	Use:   "links <file>",
	Short: "List the external link targets of one workbook",
	Long: `Open a single workbook and print each external link target on its own
line. Targets go to stdout so the output pipes cleanly.

Examples:
  xlinks links report.xls
  xlinks links budget.xlsx --match "Q[1-4]"
  xlinks links locked.xlsx --password hunter2`,
	Args: cobra.ExactArgs(1),
	RunE: runLinks,
}

func init() {
	addPasswordFlag(linksCmd.Flags(), &linksPassword)
	linksCmd.Flags().IntVar(&linksFormat, "format", 2, "Open-format code forwarded to the document host")
	linksCmd.Flags().StringVar(&linksMatch, "match", "", "Regexp link targets must match to be listed")
	rootCmd.AddCommand(linksCmd)
}

func runLinks(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]

	var matchRE *regexp.Regexp
	if linksMatch != "" {
		var err error
		matchRE, err = regexp.Compile(linksMatch)
		if err != nil {
			return fmt.Errorf("link match expression: %w", err)
		}
	}

	host := document.NewFileHost()
	defer host.Shutdown()

	doc, err := host.Open(path, document.OpenOptions{
		Password: resolvePassword(linksPassword),
		Format:   linksFormat,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	targets, err := doc.LinkTargets()
	_ = doc.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	links := make([]string, 0, len(targets))
	for _, target := range targets {
		if matchRE != nil && !matchRE.MatchString(target) {
			continue
		}
		links = append(links, target)
	}

	if jsonOutput {
		return jsonPrint(struct {
			Workbook string   `json:"workbook"`
			Links    []string `json:"links"`
		}{Workbook: path, Links: links})
	}

	for _, link := range links {
		fmt.Println(link)
	}
	if len(links) == 0 {
		fmt.Fprintln(os.Stderr, "no external links")
	}
	return nil
}
