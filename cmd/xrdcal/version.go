package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xrd-calib/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xrdcal %s\n", version.Version)
		fmt.Printf("  Go:     %s\n", version.GoInfo)
		fmt.Printf("  Commit: %s\n", version.GitCommit)
		fmt.Printf("  Built:  %s\n", version.BuildTime)
	},
}
