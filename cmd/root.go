package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "xlinks",
	Short:         "Audit spreadsheet estates for external file links",
	Version:       Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-formatted text")
}

// addPasswordFlag registers the shared workbook-password flag. Every command
// that opens workbooks takes the same flag with the same env fallback.
func addPasswordFlag(fs *pflag.FlagSet, p *string) {
	fs.StringVar(p, "password", "", "Password for protected workbooks (env: XLINKS_PASSWORD)")
}

// resolvePassword prefers the flag, then the environment. Passing secrets
// via env keeps them out of shell history and process listings.
func resolvePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("XLINKS_PASSWORD")
}

// Execute runs the CLI. Interrupts cancel the command context so a running
// scan can stop between files and still tear its session down.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
