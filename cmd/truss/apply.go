package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/truss/pkg/txn"
)

var installCmd = &cobra.Command{
	Use:   "install <package-or-name>",
	Short: "Install a local package file or a repository-known package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		root, _ := cmd.Flags().GetString("install-root")
		version, _ := cmd.Flags().GetString("version")
		repo, _ := cmd.Flags().GetString("repository")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		forceOrphan, _ := cmd.Flags().GetBool("force-orphan")

		cs, err := f.Install(context.Background(), args[0], txn.Options{
			InstallRoot: root,
			Version:     version,
			Repository:  repo,
			DryRun:      dryRun,
			ForceOrphan: forceOrphan,
		})
		if err != nil {
			return err
		}
		if cs == nil {
			if dryRun {
				fmt.Println("dry run: no changes made")
			} else {
				fmt.Println("no changes made: nothing to install")
			}
			return nil
		}
		fmt.Printf("changeset %d applied: %s\n", cs.ID, cs.Description)
		return nil
	},
}

func init() {
	installCmd.Flags().String("install-root", "", "Deploy under an alternate root instead of /")
	installCmd.Flags().String("version", "", "Override the version recorded for this install")
	installCmd.Flags().String("repository", "", "Provenance label to record for this install")
	installCmd.Flags().Bool("dry-run", false, "Print the resolved install plan without applying it")
	installCmd.Flags().Bool("force-orphan", false, "Install even if a target path already exists on disk untracked by any trove")
}

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Uninstall a trove",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		cs, err := f.Remove(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("changeset %d applied: %s\n", cs.ID, cs.Description)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <changeset-id>",
	Short: "Reverse a previously applied changeset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid changeset id %q", args[0])
		}

		cs, err := f.Rollback(context.Background(), id)
		if err != nil {
			return err
		}
		fmt.Printf("changeset %d applied: reversed changeset %d\n", cs.ID, id)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Update a single trove, or every installed trove when no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		var name *string
		if len(args) == 1 {
			name = &args[0]
		}
		summary, err := f.Update(context.Background(), name)
		if err != nil {
			return err
		}
		fmt.Printf("%d changeset(s) applied, %d via delta, %d full downloads, %d unchanged\n",
			len(summary.Changesets), summary.DeltaApplied, summary.FullDownloaded, summary.Unchanged)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [name]",
	Short: "Reconcile installed files against their recorded hashes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		report, err := f.Verify(name)
		if err != nil {
			return err
		}
		fmt.Printf("ok=%d modified=%d missing=%d\n", report.OK, report.Modified, report.Missing)
		for _, fr := range report.Files {
			if fr.Status != "ok" {
				fmt.Printf("  %s: %s\n", fr.Path, fr.Status)
			}
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <name>",
	Short: "Show an installed trove's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		trove, err := f.Query(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s) - %s\n", trove.Name, trove.Version, trove.Architecture, trove.Description)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every installed trove",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		troves, err := f.List()
		if err != nil {
			return err
		}
		for _, t := range troves {
			fmt.Printf("%s %s (%s)\n", t.Name, t.Version, t.Architecture)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search synced repository packages by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		pkgs, err := f.Search(args[0])
		if err != nil {
			return err
		}
		for _, p := range pkgs {
			fmt.Printf("%s %s (%s) - %s\n", p.Name, p.Version, p.Architecture, p.Description)
		}
		return nil
	},
}

var dependsCmd = &cobra.Command{
	Use:   "depends <name>",
	Short: "Show the dependency order a fresh install of name would require",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		order, err := f.Depends(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, name := range order {
			fmt.Println(name)
		}
		return nil
	},
}

var rdependsCmd = &cobra.Command{
	Use:   "rdepends <name>",
	Short: "Show installed troves that directly depend on name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		names, err := f.RDepends(args[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var whatBreaksCmd = &cobra.Command{
	Use:   "what-breaks <name>",
	Short: "Show what removing name would break, without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFacade(cmd)
		if err != nil {
			return err
		}
		defer f.Close()

		breaking, err := f.WhatBreaks(args[0])
		if err != nil {
			return err
		}
		if len(breaking) == 0 {
			fmt.Println("nothing depends on this trove")
			return nil
		}
		for _, name := range breaking {
			fmt.Println(name)
		}
		return nil
	},
}
