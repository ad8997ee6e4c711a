package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/tap-freshdesk/tap"
)

// streamsCmd represents the streams command
var streamsCmd = &cobra.Command{
	Use:         "streams",
	Short:       "List the available streams",
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range tap.Names() {
			stream, _ := tap.Lookup(name)
			fmt.Printf("%-22s %s\n", name, stream.Path)
		}
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tap-freshdesk %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(versionCmd)
}
