package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clip-merger/internal/logging"
	"clip-merger/internal/merge"
	"clip-merger/internal/startup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "clipmerge",
		Short:         "Merge video clips with ffmpeg",
		Long:          "Merge video clips offline with the same pipeline the clip merger server runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.SetOutput(cmd.ErrOrStderr())
			if verbose {
				logging.SetLevel(logging.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newMergeCmd(),
		newProbeCmd(),
		newPresetsCmd(),
		newJobsCmd(),
		newVersionCmd(),
	)
	return root
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List resolution presets, filters, transitions and audio modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "PRESET\tRESOLUTION")
			fmt.Fprintf(w, "%s\t%s\n", merge.PresetOriginal, "first clip")
			for _, p := range merge.Presets() {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Resolution)
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "FILTERS")
			for _, f := range merge.FilterNames() {
				fmt.Fprintf(w, "  %s\n", f)
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "TRANSITIONS")
			for _, t := range merge.Transitions() {
				fmt.Fprintf(w, "  %s\n", t)
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "AUDIO MODES")
			for _, m := range merge.AudioModes() {
				fmt.Fprintf(w, "  %s\n", m)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "clipmerge %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}
