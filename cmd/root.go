// Package cmd implements the command-line interface for the opportunity
// crawler.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/re-search/cmd/cleanup"
	"github.com/jonesrussell/re-search/cmd/common"
	"github.com/jonesrussell/re-search/cmd/crawl"
	"github.com/jonesrussell/re-search/cmd/httpd"
	"github.com/jonesrussell/re-search/cmd/migrate"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "re-search",
	Short: "Research opportunity crawler",
	Long: `Crawls university research pages, extracts opportunity listings and
reconciles them into a tracked record set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return common.InitConfig()
	},
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(common.KeyConfig, "", "config file (default is ./config.yml or ./config/config.yml)")
	flags.Bool(common.KeyDebug, false, "enable debug logging and gin debug mode")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")

	_ = viper.BindPFlag(common.KeyConfig, flags.Lookup(common.KeyConfig))
	_ = viper.BindPFlag(common.KeyDebug, flags.Lookup(common.KeyDebug))
	_ = viper.BindPFlag(common.KeyLogLevel, flags.Lookup("log-level"))
	_ = viper.BindEnv(common.KeyLogLevel, "LOG_LEVEL")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "re-search version %s\n", Version)
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(migrate.Command())
	rootCmd.AddCommand(cleanup.Command())
}
