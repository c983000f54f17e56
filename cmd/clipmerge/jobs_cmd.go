package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"clip-merger/internal/database"
)

const (
	// Default timeout for job store operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "./data"
)

type jobsOptions struct {
	dbPath string
	format string
}

func defaultDBPath() string {
	return filepath.Join(envOr("DATABASE_DIR", defaultDatabaseDir), "jobs.db")
}

func newJobsCmd() *cobra.Command {
	opts := &jobsOptions{}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and prune the server's job history",
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDBPath(), "job store path (default from DATABASE_DIR)")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "auto", "output format: auto, table or json")

	cmd.AddCommand(newJobsListCmd(opts), newJobsShowCmd(opts), newJobsPruneCmd(opts))
	return cmd
}

// openStore opens an existing job store. A missing file is an error rather
// than an empty store.
func (o *jobsOptions) openStore(ctx context.Context) (*database.Database, error) {
	if _, err := os.Stat(o.dbPath); err != nil {
		return nil, fmt.Errorf("job store %s: %w (set DATABASE_DIR or --db)", o.dbPath, err)
	}
	return database.New(ctx, o.dbPath)
}

// useJSON resolves the output format. auto prints tables to terminals and
// JSON to pipes.
func (o *jobsOptions) useJSON(out io.Writer) (bool, error) {
	switch o.format {
	case "json":
		return true, nil
	case "table":
		return false, nil
	case "auto":
		f, ok := out.(*os.File)
		return !ok || !term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("unknown format %q", o.format)
	}
}

func withStore(cmd *cobra.Command, opts *jobsOptions, fn func(ctx context.Context, db *database.Database) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
	defer cancel()

	db, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to close job store: %v\n", err)
		}
	}()
	return fn(ctx, db)
}

func newJobsListCmd(opts *jobsOptions) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := database.JobStatus(status)
			if s != "" && !s.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			asJSON, err := opts.useJSON(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			return withStore(cmd, opts, func(ctx context.Context, db *database.Database) error {
				list, err := db.ListJobs(ctx, database.ListOptions{Status: s, Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				return writeJobTable(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this status (running, succeeded, failed)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "jobs per page")
	return cmd
}

func newJobsShowCmd(opts *jobsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one job with its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.useJSON(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return withStore(cmd, opts, func(ctx context.Context, db *database.Database) error {
				job, err := db.GetJob(ctx, args[0])
				if errors.Is(err, database.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), job)
				}
				return writeJobDetail(cmd.OutOrStdout(), job)
			})
		},
	}
}

func newJobsPruneCmd(opts *jobsOptions) *cobra.Command {
	var (
		olderThan time.Duration
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cutoff := time.Now().Add(-olderThan)

			if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Delete finished jobs created before %s? [y/N] ", cutoff.Format(time.RFC3339))) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return withStore(cmd, opts, func(ctx context.Context, db *database.Database) error {
				n, err := db.PruneJobs(ctx, cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s).\n", n)
				if n == 0 {
					return nil
				}
				return db.Vacuum(ctx)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "age of the oldest job to keep")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJobTable(w io.Writer, list *database.JobList) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tCLIPS\tDURATION\tOUTPUT")
	for _, j := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%.1fs\t%s\n",
			j.ID, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			j.ClipsMerged, j.ClipCount, j.Duration, j.OutputName)
	}
	fmt.Fprintf(tw, "\npage %d of %d (%d job(s))\n", list.Page, max(list.TotalPages, 1), list.TotalItems)
	return tw.Flush()
}

func writeJobDetail(w io.Writer, j *database.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", j.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", j.Status)
	fmt.Fprintf(tw, "Created:\t%s\n", j.CreatedAt.Local().Format(time.RFC3339))
	if j.FinishedAt != nil {
		fmt.Fprintf(tw, "Finished:\t%s (%v)\n", j.FinishedAt.Local().Format(time.RFC3339), time.Duration(j.ElapsedMs)*time.Millisecond)
	}
	fmt.Fprintf(tw, "Clips:\t%d merged of %d (intro %v, outro %v)\n", j.ClipsMerged, j.ClipCount, j.HasIntro, j.HasOutro)
	fmt.Fprintf(tw, "Output:\t%s %dx%d, %.2fs\n", j.OutputName, j.Width, j.Height, j.Duration)
	fmt.Fprintf(tw, "Transition:\t%s (%.1fs, cross-fade %v)\n", j.Transition, j.TransitionDuration, j.CrossFade)
	fmt.Fprintf(tw, "Audio:\t%s\n", j.AudioMode)
	if j.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s (%s)\n", j.Error, j.ErrorKind)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, d := range j.Diagnostics {
		if d.Input != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", d.Stage, d.Input, d.Message)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", d.Stage, d.Message)
		}
	}
	return nil
}
