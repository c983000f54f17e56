package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clip-merger/internal/probe"
)

func newProbeCmd() *cobra.Command {
	var tools toolOptions

	cmd := &cobra.Command{
		Use:   "probe FILE...",
		Short: "Print duration and resolution of media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prober := probe.New(tools.transcoder(""))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tDURATION\tRESOLUTION\tAUDIO")

			failed := 0
			for _, path := range args {
				res, err := prober.Probe(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(w, "%s\terror: %v\t\t\n", path, err)
					continue
				}
				duration := "-"
				if d, err := res.FrameDuration(); err == nil {
					duration = fmt.Sprintf("%.3fs", d)
				} else if res.Format.Duration > 0 {
					duration = fmt.Sprintf("%.3fs", res.Format.Duration)
				}
				resolution := "-"
				if v := res.PrimaryVideo; v != nil && v.Width > 0 && v.Height > 0 {
					resolution = fmt.Sprintf("%dx%d", v.Width, v.Height)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", path, duration, resolution, res.HasAudio())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) could not be probed", failed, len(args))
			}
			return nil
		},
	}
	tools.register(cmd)
	return cmd
}
