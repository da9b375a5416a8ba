package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "krakbit"}

	root.AddCommand(serveCMD(), generateCMD(), askCMD(), trendingCMD(), migrateCMD())
	_ = root.Execute()
}
