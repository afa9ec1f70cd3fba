package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/datallboy/gotok/internal/client"
	"github.com/spf13/cobra"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	f := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Queue downloads on the running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			addOpts := client.AddOptions{Quality: f.quality, Title: f.title}
			if cmd.Flags().Changed("keep-watermark") {
				rm := !f.keepMark
				addOpts.RemoveWatermark = &rm
			}

			var errs []error
			for _, u := range args {
				snap, err := c.Add(cmd.Context(), u, addOpts)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", u, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued #%d %s\n", snap.ID, snap.URL)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "", "format height (e.g. 720) or best")
	cmd.Flags().StringVar(&f.title, "title", "", "known title, skips title lookup")
	cmd.Flags().BoolVar(&f.keepMark, "keep-watermark", false, "keep the watermarked variant")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show all downloads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			list, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderList(list.Downloads, stats))
			return nil
		},
	}
}

// newIDCmd builds a command that applies action to each id argument.
func newIDCmd(opts *rootOptions, use, short string, action func(context.Context, *client.Client, int64) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range ids {
				msg, err := action(cmd.Context(), c, id)
				if err != nil {
					errs = append(errs, fmt.Errorf("#%d: %w", id, err))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return errors.Join(errs...)
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return newIDCmd(opts, "stop", "Stop queued or running downloads",
		func(ctx context.Context, c *client.Client, id int64) (string, error) {
			snap, err := c.Stop(ctx, id)
			return renderStatusLine(snap), err
		})
}

func newRetryCmd(opts *rootOptions) *cobra.Command {
	return newIDCmd(opts, "retry", "Queue finished, failed or stopped downloads again",
		func(ctx context.Context, c *client.Client, id int64) (string, error) {
			snap, err := c.Retry(ctx, id)
			return renderStatusLine(snap), err
		})
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	cmd := newIDCmd(opts, "remove", "Stop and forget downloads",
		func(ctx context.Context, c *client.Client, id int64) (string, error) {
			return fmt.Sprintf("Removed #%d", id), c.Remove(ctx, id)
		})
	cmd.Aliases = []string{"rm"}
	return cmd
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return newIDCmd(opts, "open", "Reveal the downloaded file",
		func(ctx context.Context, c *client.Client, id int64) (string, error) {
			return fmt.Sprintf("Opened #%d", id), c.Open(ctx, id)
		})
}

func newStopAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every unfinished download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.StopAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d downloads\n", n)
			return nil
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed downloads from the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed downloads\n", n)
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var reset bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if reset {
				if err := c.ResetStats(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Download counter reset")
				return nil
			}
			entries, err := c.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderHistory(entries, stats.TotalDownloads))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the completed download counter")
	return cmd
}

func newUpdateToolCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update-tool",
		Short: "Update yt-dlp (refused while downloads are pending)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			msg, err := c.UpdateTool(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

