package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/encodeous/spfsync/feed"
	"github.com/encodeous/spfsync/state"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog <file>",
	Short: "Parses a catalog file and prints its records with their canonical keys",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := feed.LoadCatalog(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NODE\tNAME\tADDR\tPREFIX\tPBSID")
		for _, n := range c.Nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.Id, n.Name, n.Addr, n.Prefix, n.Pbsid)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "LINK KEY\tENDPOINTS\tNAMES\tMETRIC\tBW\tAVA BW\tDELAY")
		for _, l := range c.Links {
			key, _ := state.MakeLinkKey(l.IdA, l.IdB)
			fmt.Fprintf(w, "%#016x\t%s\t%s <-> %s\t%d\t%g\t%g\t%g\n", uint64(key), key, l.NameA, l.NameB, l.Metric, l.Bw, l.AvaBw, l.Delay)
		}
		if len(c.Adjacencies) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "ADJACENCY\tMETRIC\tUP")
			for _, a := range c.Adjacencies {
				key, _ := state.MakeLinkKey(a.A, a.B)
				fmt.Fprintf(w, "%s\t%d\t%t\n", key, a.Metric, a.Up)
			}
		}
		w.Flush()
	},
	GroupID: "debug",
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
