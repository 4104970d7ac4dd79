package cmd

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubSlug identifies the release repository for binary updates.
const githubSlug = "charmhealth/charm-mcp"

// newSelfUpdateCmd creates the selfupdate command
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfupdate",
		Short: "Update charm-mcp to the latest release",
		Long: `Check GitHub for a newer release of charm-mcp and replace the
current binary in place when one is available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd.Context())
		},
	}
}

func runSelfUpdate(ctx context.Context) error {
	if version == "" || version == "dev" {
		return fmt.Errorf("cannot self-update a development build; install a released binary first")
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubSlug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version could not be found from repository %s", githubSlug)
	}

	if latest.LessOrEqual(version) {
		fmt.Printf("Current version (%s) is the latest\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Printf("Updating from %s to %s...\n", version, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version %s\n", latest.Version())
	return nil
}
