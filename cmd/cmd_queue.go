package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/tunesession/internal/app"
	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

func newQueueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or edit the stored queue",
		Long: `Inspect or edit the stored queue.

Edits apply to the persisted session. A running server keeps its own copy
and writes it back when it stops, so stop it first.`,
	}
	cmd.AddCommand(
		newQueueListCmd(opts),
		newQueueAddCmd(opts),
		newQueueRemoveCmd(opts),
		newQueueClearCmd(opts),
	)
	return cmd
}

func newQueueListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the queue in play order",
		Long: `List the queue in play order.

Rows are numbered by play position. The bracketed number is the item's
position in the natural order, the one "queue add --index" takes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				items, err := a.Remote().Items(ctx)
				if err != nil {
					return err
				}
				natural, err := a.Remote().MediaItems(ctx)
				if err != nil {
					return err
				}
				np, err := a.Remote().Snapshot(ctx)
				if err != nil {
					return err
				}
				return printQueue(cmd.OutOrStdout(), items, natural, np.URI)
			})
		},
	}
}

func newQueueAddCmd(opts *options) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "add PATH...",
		Short: "Add local files or folders to the queue",
		Long: `Add local files to the queue. Folders are scanned recursively for
supported media. Files already queued are skipped.

Examples:
  # Append an album
  tunesession queue add ~/Music/album

  # Insert before the third item
  tunesession queue add --index 2 song.mp3
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				refs, err := a.Scanner().Scan(ctx, args)
				if err != nil {
					return err
				}
				if len(refs) == 0 {
					return fmt.Errorf("no playable files among %d argument(s)", len(args))
				}

				added, err := a.Remote().Add(ctx, refs, index)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s of %s file(s), %s\n",
					humanize.Comma(int64(added)), humanize.Comma(int64(len(refs))), humanize.IBytes(totalSize(refs)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", domain.IndexUnset, "Insert position in the natural order (default appends)")
	return cmd
}

func newQueueRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove URI",
		Aliases: []string{"rm"},
		Short:   "Remove an item from the queue",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				removed, err := a.Remote().Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not queued", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
				if err := a.Remote().Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
				return nil
			})
		},
	}
}

// printItems writes one row per item, marking current.
func printItems(out io.Writer, items []domain.MediaReference, current string) error {
	return writeRows(out, items, current, nil)
}

// printQueue is printItems for play-ordered items, with each row's natural
// index in brackets.
func printQueue(out io.Writer, played, natural []domain.MediaReference, current string) error {
	index := lo.SliceToMap(lo.Range(len(natural)), func(i int) (string, int) { return natural[i].URI, i })
	return writeRows(out, played, current, func(item domain.MediaReference) string {
		if i, ok := index[item.URI]; ok {
			return fmt.Sprintf("[%d]", i)
		}
		return "[?]"
	})
}

func writeRows(out io.Writer, items []domain.MediaReference, current string, label func(domain.MediaReference) string) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "(empty)")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, item := range items {
		marker := " "
		if item.URI == current {
			marker = "*"
		}
		if label != nil {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", marker, i+1, label(item), item.Title, item.Subtitle, item.URI)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", marker, i+1, item.Title, item.Subtitle, item.URI)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%s item(s)\n", humanize.Comma(int64(len(items))))
	return err
}

// totalSize sums the sizes of the local files behind refs.
func totalSize(refs []domain.MediaReference) uint64 {
	var total uint64
	for _, ref := range refs {
		u, err := url.Parse(ref.URI)
		if err != nil || u.Scheme != "file" {
			continue
		}
		if info, err := os.Stat(filepath.FromSlash(u.Path)); err == nil && info.Mode().IsRegular() {
			total += uint64(info.Size()) //nolint:gosec // sizes are non-negative
		}
	}
	return total
}
