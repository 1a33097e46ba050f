package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adblink/adblink/cmd"
	"github.com/adblink/adblink/pkg/adblink"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cmd.DisallowArguments,
	Run: cmd.Mainify(func(*cobra.Command, []string) error {
		fmt.Println(adblink.Version)
		return nil
	}),
}
