package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/truss/pkg/config"
	"github.com/cuemby/truss/pkg/facade"
	"github.com/cuemby/truss/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "truss",
	Short: "truss - a transactional, cross-format package manager",
	Long: `truss installs, removes, updates and rolls back RPM, Debian and
Arch packages through a single content-addressed store, recording every
change as a changeset that can be reversed exactly.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"truss version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to config file (defaults to unconfigured root)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(dependsCmd)
	rootCmd.AddCommand(rdependsCmd)
	rootCmd.AddCommand(whatBreaksCmd)
	rootCmd.AddCommand(repoCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// openFacade loads the config named by --config (or the default,
// unconfigured root) and opens it as a Facade. Every command that
// touches installed state goes through this single entry point.
func openFacade(cmd *cobra.Command) (*facade.Facade, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Unmarshal(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return facade.Open(cfg)
}
