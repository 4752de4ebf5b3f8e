package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage package repositories",
}

func init() {
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoEnableCmd)
	repoCmd.AddCommand(repoDisableCmd)
	repoCmd.AddCommand(repoSyncCmd)

	repoAddCmd.Flags().Int("priority", 0, "Resolution priority; higher wins")
	repoAddCmd.Flags().Bool("gpg-check", false, "Require a signature check on packages from this repository")
	repoAddCmd.Flags().String("gpg-key-url", "", "URL of the GPG key used to verify packages from this repository")

	repoSyncCmd.Flags().Bool("force", false, "Resync even if the cached index has not expired")
}

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a new repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		priority, _ := cmd.Flags().GetInt("priority")
		gpgCheck, _ := cmd.Flags().GetBool("gpg-check")
		gpgKeyURL, _ := cmd.Flags().GetString("gpg-key-url")

		repo, err := f.RepoAdd(context.Background(), args[0], args[1], priority, gpgCheck, gpgKeyURL)
		if err != nil {
			return err
		}
		fmt.Printf("added repository %s (id %d)\n", repo.Name, repo.ID)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		repos, err := f.RepoList()
		if err != nil {
			return err
		}
		for _, r := range repos {
			state := "enabled"
			if !r.Enabled {
				state = "disabled"
			}
			fmt.Printf("%d  %-20s  %-8s  priority=%d  %s\n", r.ID, r.Name, state, r.Priority, r.URL)
		}
		return nil
	},
}

func repoIDArg(args []string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid repository id %q", args[0])
	}
	return id, nil
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a repository and its cached index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		id, err := repoIDArg(args)
		if err != nil {
			return err
		}
		return f.RepoRemove(context.Background(), id)
	},
}

var repoEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		id, err := repoIDArg(args)
		if err != nil {
			return err
		}
		return f.RepoEnable(context.Background(), id)
	},
}

var repoDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		id, err := repoIDArg(args)
		if err != nil {
			return err
		}
		return f.RepoDisable(context.Background(), id)
	},
}

var repoSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Download a repository's index and refresh its cached package list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		id, err := repoIDArg(args)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		n, err := f.RepoSync(context.Background(), id, force)
		if err != nil {
			return err
		}
		fmt.Printf("synced %d package(s)\n", n)
		return nil
	},
}
