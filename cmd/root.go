package cmd

import (
	"os"

	"github.com/encodeous/spfsync/state"
	"github.com/spf13/cobra"
)

var configPath = state.DefaultConfigPath

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spfsync",
	Short: "Shortest path topology to record store synchronizer",
	Long: `spfsync mirrors the routers and links reachable in the latest shortest path computation into an external record store.
Rows are published the first time a record becomes live and retracted once it stops being live, links before nodes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sync",
		Title: "Sync Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "debug",
		Title: "Debugging",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "daemon config")
}

func loadConfig() (*state.Cfg, error) {
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return nil, err
	}
	state.ExpandConfig(cfg)
	return cfg, state.ConfigValidator(cfg)
}
