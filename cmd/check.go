package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validates the config and prints it with defaults filled in",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			os.Exit(1)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
	},
	GroupID: "sync",
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
