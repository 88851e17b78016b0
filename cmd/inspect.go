package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/estatescan/xlinks/document"
)

var inspectPassword string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show what a workbook file actually contains",
	Long: `Report a workbook's real container and flavor, whether it is encrypted,
its sheets, its external links and its document properties. Detection goes
by content, so inspect is the tool of choice when an extension lies: a
".xls" that is really an OOXML package, or a ".xlsx" that is an encrypted
compound file, shows up as what it is.

Examples:
  xlinks inspect mystery.xls
  xlinks inspect locked.xlsx --password hunter2
  xlinks inspect report.xls --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	addPasswordFlag(inspectCmd.Flags(), &inspectPassword)
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]

	host := document.NewFileHost()
	defer host.Shutdown()

	info, err := host.Inspect(path, document.OpenOptions{
		Password: resolvePassword(inspectPassword),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if jsonOutput {
		return jsonPrint(info)
	}

	fmt.Printf("Container:  %s\n", info.Container)
	fmt.Printf("Flavor:     %s\n", info.Flavor)
	fmt.Printf("Encrypted:  %v\n", info.Encrypted)
	if len(info.Sheets) > 0 {
		fmt.Printf("Sheets:     %s\n", strings.Join(info.Sheets, ", "))
	}
	fmt.Printf("Links:      %d\n", len(info.Links))
	for _, link := range info.Links {
		fmt.Printf("  -> %s\n", link)
	}
	if len(info.Properties) > 0 {
		fmt.Println("Properties:")
		for _, p := range info.Properties {
			fmt.Printf("  %-20s %s\n", p.Name, p.Value)
		}
	}
	return nil
}
