package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s0up4200/tap-freshdesk/freshdesk"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the Freshdesk API key",
	Long:  `Open a session against the configured Freshdesk domain and validate the API key with a single roles request.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	fdCfg := clientConfig(cfg.Freshdesk)
	fmt.Printf("Validating credential for %s...\n", fdCfg.Domain)

	return freshdesk.WithSession(cmd.Context(), fdCfg, logger, func(c *freshdesk.Client) error {
		fmt.Println("✓ Credential valid!")
		fmt.Printf("- API: %s\n", c.BaseURL())
		fmt.Printf("- Request timeout: %s\n", c.Timeout())
		return nil
	}, clientOptions(cfg.RateLimit)...)
}
