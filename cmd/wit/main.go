// cmd/wit/main.go
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wit/internal/config"
	"wit/internal/errors"
	"wit/internal/logging"
	"wit/internal/repo"
	"wit/internal/snapshot"
	"wit/internal/status"
	"wit/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "wit",
	Short: "Wit is a minimal snapshot-based version control system",
	Long: `Wit tracks full snapshots of a working directory. Stage files with add,
record them with commit, move between snapshots with checkout, and join
divergent lines of history with merge.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Wit repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			logger, err := logging.NewLogger(logging.LevelFromEnv(config.DefaultLogLevel))
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()

			l, err := repo.Init(dir, logger.Logger)
			if err != nil {
				return err
			}

			fmt.Println("Initialized empty Wit repository in", l.Meta)
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add <path>...",
		Short: "Stage files or directories for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			staged, err := r.Add(args...)
			if err != nil {
				return fmt.Errorf("staging changes: %w", err)
			}
			for _, p := range staged {
				fmt.Printf("staged %s\n", p)
			}
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Record the staging area as a new snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			id, err := r.Commit(message)
			if err != nil {
				return fmt.Errorf("committing: %w", err)
			}
			fmt.Printf("[%s] %s\n", id, message)
			return nil
		},
	}
	commitCmd.Flags().StringP("message", "m", "", "Commit message")
	commitCmd.MarkFlagRequired("message")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.Status()
			if err != nil {
				return err
			}
			printStatus(report)
			return nil
		},
	}

	var checkoutCmd = &cobra.Command{
		Use:   "checkout <branch|commit>",
		Short: "Replace the working tree with a snapshot",
		Long: `Replaces tracked files in the working tree and the staging area with the
snapshot named by a branch, HEAD, or a commit id (or unique prefix).
Untracked files are left alone. Refused while changes are pending or unstaged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			target, err := r.Checkout(args[0])
			if err != nil {
				return err
			}
			if target.Branch != "" {
				fmt.Printf("Switched to %s (%s)\n", target.Branch, target.ID)
			} else {
				fmt.Printf("HEAD is now at %s (detached)\n", target.ID)
			}
			return nil
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch [name]",
		Short: "Create a branch at HEAD, or list branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			if len(args) == 1 {
				if err := r.Branch(args[0]); err != nil {
					return err
				}
				fmt.Printf("Branch %s created\n", args[0])
				return nil
			}

			set, err := r.References()
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			for _, b := range set.Branches {
				if b.Name == set.Active {
					fmt.Printf("* %s %s\n", green(b.Name), b.ID)
				} else {
					fmt.Printf("  %s %s\n", b.Name, b.ID)
				}
			}
			return nil
		},
	}

	var mergeCmd = &cobra.Command{
		Use:   "merge <branch|commit>",
		Short: "Merge another line of history into HEAD",
		Long: `Stages every file added or changed on the other side since the merge base
and records a commit with two parents. The incoming side wins every conflict,
and files removed on the incoming side are not removed here.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Merge(args[0])
			if err != nil {
				return err
			}
			printMerge(res)
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show HEAD and its ancestors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			metas, err := r.Log()
			if err != nil {
				return err
			}
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, m := range metas {
				fmt.Printf("%s %s\n", yellow("commit"), yellow(m.ID))
				if len(m.Parents) > 1 {
					fmt.Printf("Merge:  %v\n", m.Parents)
				}
				fmt.Printf("Date:   %s\n\n    %s\n\n", m.Time.Format(snapshot.DateLayout), m.Message)
			}
			return nil
		},
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check that no snapshot changed after it was committed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			bad, err := r.Verify()
			if err != nil {
				return err
			}
			if len(bad) == 0 {
				fmt.Println("All snapshots intact")
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			for _, c := range bad {
				fmt.Printf("%s %s\n", red("damaged"), c.ID)
				printPaths("modified", c.Damage.Modified)
				printPaths("missing", c.Damage.Missing)
				printPaths("extra", c.Damage.Extra)
			}
			return fmt.Errorf("%d damaged snapshot(s)", len(bad))
		},
	}

	var archiveCmd = &cobra.Command{
		Use:   "archive <branch|commit>",
		Short: "Write a snapshot as a tar.zst archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			target, err := r.Archive(args[0], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				return err
			}
			fmt.Printf("Wrote %s from %s\n", output, target.ID)
			return nil
		},
	}
	archiveCmd.Flags().StringP("output", "o", "snapshot.tar.zst", "Archive path")

	var reflogCmd = &cobra.Command{
		Use:   "reflog",
		Short: "Show the history of reference movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			entries, err := r.ReflogEntries()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-8s %.6s -> %.6s  %s\n",
					e.Time.Format("2006-01-02 15:04:05"), e.Op, e.Old, e.New, e.Message)
			}
			return nil
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(reflogCmd)
}

// openRepo opens the repository containing the current directory, logging
// at the level its config asks for.
func openRepo() (*repo.Repo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workspace.NewLayout(root).Config)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.LevelFromEnv(cfg.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return repo.Open(root, logger.Logger)
}

func printStatus(r *status.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	fmt.Printf("HEAD: %s\n", r.Head)

	fmt.Println("\nChanges to be committed:")
	if len(r.ToBeCommitted) == 0 {
		fmt.Println("  No current changes.")
	}
	for _, p := range r.ToBeCommitted {
		fmt.Printf("\t%s %s\n", green("+"), p)
	}

	fmt.Println("\nChanges not staged for commit:")
	if len(r.NotStaged) == 0 {
		fmt.Println("  No current changes.")
	} else {
		fmt.Println("  (use \"wit add <file>...\" to stage them)")
	}
	for _, p := range r.NotStaged {
		fmt.Printf("\t%s %s\n", yellow("M"), p)
	}

	fmt.Println("\nUntracked files:")
	if len(r.Untracked) == 0 {
		fmt.Println("  No current untracked files.")
	}
	for _, p := range r.Untracked {
		fmt.Printf("\t%s %s\n", blue("?"), p)
	}
	fmt.Println()
}

func printMerge(res *repo.MergeResult) {
	fmt.Printf("[%s] %s\n", res.Commit, res.Message)
	fmt.Printf("merge base %s, %d file(s) taken from %s\n", res.Base, len(res.Staged), res.Other.Input)

	yellow := color.New(color.FgYellow).SprintFunc()
	if len(res.Overwritten) > 0 {
		fmt.Println(yellow("note: changed on both sides, incoming content kept:"))
		for _, p := range res.Overwritten {
			fmt.Printf("\t%s\n", p)
		}
	}
	if len(res.NotPropagated) > 0 {
		fmt.Println(yellow("note: removed on the incoming side, not removed here:"))
		for _, p := range res.NotPropagated {
			fmt.Printf("\t%s\n", p)
		}
	}
}

func printPaths(label string, paths []string) {
	for _, p := range paths {
		fmt.Printf("\t%s: %s\n", label, p)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintln(os.Stderr, red("error:"), err)
		if report, ok := errors.DetailsOf(err).(*status.Report); ok {
			fmt.Fprintln(os.Stderr, "\nCurrent status:")
			printStatus(report)
		}
		os.Exit(1)
	}
}
