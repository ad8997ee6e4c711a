package cmd

import (
	"fmt"
	"runtime"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/s0up4200/tap-freshdesk/config"
)

var repository string

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update tap-freshdesk to the latest release",
	// a broken or missing config must not block an update
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&repository, "repository", config.DefaultRepository, "GitHub repository to update from")
}

// updateRepository prefers the flag, then update.repository from a config
// that loads cleanly, then the default.
func updateRepository(cmd *cobra.Command) string {
	if cmd.Flags().Changed("repository") {
		return repository
	}
	if loaded, err := config.Load(cfgFile); err == nil && loaded.Update.Repository != "" {
		return loaded.Update.Repository
	}
	return config.DefaultRepository
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	current, err := semver.ParseTolerant(version)
	if err != nil {
		return fmt.Errorf("cannot update a development build (%s)", version)
	}

	repo := updateRepository(cmd)
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repo))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from %s", runtime.GOOS, runtime.GOARCH, repo)
	}

	if latest.LessOrEqual(current.String()) {
		fmt.Printf("✓ Current version (%s) is the latest\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	logger.Info().Str("from", current.String()).Str("to", latest.Version()).Msg("Updating")
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("✓ Successfully updated to version %s\n", latest.Version())
	return nil
}
