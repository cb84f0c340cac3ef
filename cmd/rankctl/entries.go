package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vaulted/rankkey/internal/backend"
	"github.com/vaulted/rankkey/ordering"
)

func printEntries(w io.Writer, entries []ordering.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tITEM\tRANK")
	for i, e := range entries {
		rank := e.Rank
		if !e.Ranked() {
			rank = "(unranked)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, e.ItemID, rank)
	}
	return tw.Flush()
}

func printEntry(w io.Writer, e ordering.Entry) {
	fmt.Fprintf(w, "%s\t%s\n", e.ItemID, e.Rank)
}

func newListCmd(a *app) *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the items of a context in order",
		Long:  "List the stored entries of a context. With --items the list holds exactly those items; items without an entry appear unranked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				coll, err := b.Orderer.Load(ctx, scope, items...)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), coll.Entries())
			})
		},
	}
	cmd.Flags().StringSliceVar(&items, "items", nil, "item IDs that make up the context")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add ITEM...",
		Short: "Append items to the end of a context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				coll, err := b.Orderer.Load(ctx, scope)
				if err != nil {
					return err
				}
				for _, id := range args {
					e, err := b.Orderer.Add(ctx, coll, id)
					if err != nil {
						return err
					}
					printEntry(cmd.OutOrStdout(), e)
				}
				return nil
			})
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	var before, after string
	cmd := &cobra.Command{
		Use:   "move ITEM [INDEX]",
		Short: "Move an item to a position, or next to another item",
		Example: `  rankctl --context list-1 move item-5 1
  rankctl --context list-1 move item-5 --before item-2`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID := args[0]
			relative := before != "" || after != ""
			switch {
			case before != "" && after != "":
				return errors.New("--before and --after are mutually exclusive")
			case relative && len(args) == 2:
				return errors.New("INDEX cannot be combined with --before or --after")
			case !relative && len(args) == 1:
				return errors.New("INDEX, --before or --after is required")
			}
			to := -1
			if !relative {
				var err error
				if to, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("index %q: %w", args[1], err)
				}
			}

			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				coll, err := b.Orderer.Load(ctx, scope)
				if err != nil {
					return err
				}
				var e ordering.Entry
				switch {
				case before != "":
					e, err = b.Orderer.MoveRelative(ctx, coll, itemID, before, ordering.Before)
				case after != "":
					e, err = b.Orderer.MoveRelative(ctx, coll, itemID, after, ordering.After)
				default:
					from := coll.IndexOf(itemID)
					if from < 0 {
						return fmt.Errorf("%w: %q", ordering.ErrItemNotFound, itemID)
					}
					e, err = b.Orderer.Move(ctx, coll, from, to)
				}
				if err != nil {
					return err
				}
				printEntry(cmd.OutOrStdout(), e)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "place the item directly before this item")
	cmd.Flags().StringVar(&after, "after", "", "place the item directly after this item")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ITEM...",
		Short: "Remove items from a context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				coll, err := b.Orderer.Load(ctx, scope)
				if err != nil {
					return err
				}
				for _, id := range args {
					if err := b.Orderer.Remove(ctx, coll, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newRebalanceCmd(a *app) *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Rewrite a context with evenly spaced keys, keeping its order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				coll, err := b.Orderer.Load(ctx, scope, items...)
				if err != nil {
					return err
				}
				entries, err := b.Orderer.Rebalance(ctx, coll)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().StringSliceVar(&items, "items", nil, "item IDs that make up the context")
	return cmd
}

func newCloneCmd(a *app) *cobra.Command {
	var toContext, toUser string
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Copy the order of a context to another context or user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if toContext == "" && toUser == "" {
				return errors.New("--to-context or --to-user is required")
			}
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				dst := scope
				if toContext != "" {
					dst.ContextID = toContext
				}
				if toUser != "" {
					dst.UserID = toUser
				}
				if dst == scope {
					return errors.New("clone target is the source")
				}
				entries, err := b.Orderer.Clone(ctx, scope, dst, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cloned %d entries to %s/%s\n", len(entries), dst.ContextID, dst.UserID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&toContext, "to-context", "", "target context ID (default: same context)")
	cmd.Flags().StringVar(&toUser, "to-user", "", "target user ID (default: same user)")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var keep []string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries of items no longer in a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error {
				pruned, err := b.Orderer.Prune(ctx, scope, keep)
				for _, e := range pruned {
					fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", e.ItemID)
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&keep, "keep", nil, "item IDs still in the context")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}
