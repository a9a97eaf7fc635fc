package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ridedispatch/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildinfo.Info()
		fmt.Fprintf(cmd.OutOrStdout(), "ridedispatch %s", info["version"])
		if info["commit"] != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info["commit"])
		}
		if info["builtAt"] != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " built %s", info["builtAt"])
		}
		fmt.Fprintln(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
