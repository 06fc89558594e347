package main

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/yourorg/lifedb/internal/app"
	iopkg "github.com/yourorg/lifedb/internal/iopkg"
	"github.com/yourorg/lifedb/internal/notify"
	"github.com/yourorg/lifedb/internal/transfer"
	"github.com/yourorg/lifedb/internal/types"
)

func (c *cli) captureCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Fetch a page and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.app.Pipeline.Capture(cmd.Context(), args[0], category)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured item %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "file the item under this category")
	return cmd
}

func (c *cli) tagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <item-id> [tag...]",
		Short: "Replace an item's tags (no tags clears them)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			tags, err := c.app.Pipeline.SetItemTags(cmd.Context(), id, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d tags: %v\n", id, tags)
			return nil
		},
	}
}

func (c *cli) renameCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-category <old> <new>",
		Short: "Move every item of a category to another and drop the old one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Pipeline.RenameCategory(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func (c *cli) mergeTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-tags <src> <dst>",
		Short: "Fold tag src into dst",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Pipeline.MergeTags(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "import <file-uri>",
		Short: "Import URLs from a json, ndjson, csv, tsv, xlsx or xls file (file:// or s3://)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			if async {
				return startWorkflow(cmd, "import-", "ImportItemsWorkflow", types.ImportItemsParams{FileURI: uri})
			}
			rc, _, err := iopkg.Open(cmd.Context(), uri)
			if err != nil {
				return err
			}
			defer rc.Close()
			records, err := transfer.ParseRecords(rc, path.Base(uri))
			if err != nil {
				return err
			}
			res, err := c.app.Pipeline.Import(cmd.Context(), records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "run as a Temporal workflow instead of in-process")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		format string
		limit  int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export items (newest first) to stdout, a file or s3://",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" || out == "-" {
				return c.app.Pipeline.Export(cmd.Context(), cmd.OutOrStdout(), format, limit)
			}
			w, closer, err := iopkg.CreateWriter(cmd.Context(), out)
			if err != nil {
				return err
			}
			if err := c.app.Pipeline.Export(cmd.Context(), w, format, limit); err != nil {
				_ = closer.Close()
				return err
			}
			return closer.Close()
		},
	}
	cmd.Flags().StringVar(&format, "fmt", transfer.FormatJSON, "json, ndjson or csv")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum items")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination path or s3:// URI; default stdout")
	return cmd
}

func (c *cli) rebuildGraphCmd() *cobra.Command {
	var (
		async    bool
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "rebuild-graph",
		Short: "Re-project every item into the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if async {
				return startWorkflow(cmd, "graph-rebuild-", "GraphRebuildWorkflow", types.GraphRebuildParams{PageSize: pageSize})
			}
			ctx := cmd.Context()
			var after int64
			total, projected := 0, 0
			for {
				ids, err := c.app.Pipeline.ItemIDsAfter(ctx, after, pageSize)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					break
				}
				n, err := c.app.Pipeline.Reproject(ctx, ids)
				if err != nil {
					return err
				}
				total += len(ids)
				projected += n
				after = ids[len(ids)-1]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "projected %d of %d items\n", projected, total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "run as a Temporal workflow instead of in-process")
	cmd.Flags().IntVar(&pageSize, "page-size", 500, "items per page")
	return cmd
}

func (c *cli) replayOutboxCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay-outbox",
		Short: "Retry queued graph projections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.Pipeline.ReplayOutbox(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum entries")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print item, tag and category counts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.app.Pipeline.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream capture and maintenance events from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.Events == nil {
				return fmt.Errorf("watch: REDIS_ADDR is not set")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return c.app.Events.Subscribe(cmd.Context(), func(ev notify.Event) {
				_ = enc.Encode(ev)
			})
		},
	}
}

func startWorkflow(cmd *cobra.Command, idPrefix, name string, params interface{}) error {
	opts, queue := app.TemporalFromEnv()
	tc, err := client.Dial(opts)
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer tc.Close()
	run, err := tc.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
		ID:        idPrefix + uuid.NewString(),
		TaskQueue: queue,
	}, name, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "started %s (run %s)\n", run.GetID(), run.GetRunID())
	return nil
}
