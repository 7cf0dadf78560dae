package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/encodeous/spfsync/core"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect [address]",
	Aliases: []string{"i"},
	Short:   "Inspects the cache of a running spfsync, or finds the node owning an address",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Println("Error:", err.Error())
				return
			}
			addr = cfg.DebugAddr
		}
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		result, err := core.FetchInspect(ctx, addr, query)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "debug",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("addr", "a", "", "debug address of the daemon, defaults to debug_addr from the config")
}
