package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/tunesession/internal/app"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored now-playing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				np, err := a.Remote().Snapshot(ctx)
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), np, time.Now())
			})
		},
	}
}

func printStatus(out io.Writer, np *domain.NowPlaying, now time.Time) error {
	if np.URI == "" {
		_, err := fmt.Fprintln(out, "Nothing queued")
		return err
	}

	fmt.Fprintf(out, "Title:    %s\n", np.Title)
	if np.Subtitle != "" {
		fmt.Fprintf(out, "Artist:   %s\n", np.Subtitle)
	}
	fmt.Fprintf(out, "URI:      %s\n", np.URI)
	fmt.Fprintf(out, "Position: %s / %s\n", clock(np.Position), clock(np.Duration))
	fmt.Fprintf(out, "Shuffle:  %t\n", np.Shuffle)
	fmt.Fprintf(out, "Repeat:   %s\n", np.Repeat)
	if np.Favourite {
		fmt.Fprintln(out, "Liked:    yes")
	}
	if np.SleepRemaining(now) >= 0 {
		fmt.Fprintf(out, "Sleep:    %s\n", humanize.RelTime(time.UnixMilli(np.SleepAt), now, "ago", "from now"))
	}
	_, err := fmt.Fprintf(out, "Updated:  %s\n", humanize.Time(np.Timestamp))
	return err
}

// clock formats milliseconds as m:ss, or --:-- when unknown.
func clock(millis int64) string {
	if millis < 0 {
		return "--:--"
	}
	d := time.Duration(millis) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
