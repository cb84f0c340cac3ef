package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vaulted/rankkey"
)

func parseKeys(args []string) ([]rankkey.Key, error) {
	keys := make([]rankkey.Key, len(args))
	for i, s := range args {
		k, err := rankkey.Parse(s)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse KEY",
		Short: "Validate a key and show its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rankkey.Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bucket:  %d\n", k.Bucket())
			fmt.Fprintf(out, "value:   %s\n", k.Value())
			fmt.Fprintf(out, "decimal: %s\n", k.Decimal())
			fmt.Fprintf(out, "approx:  %.12f\n", k.Approx())
			return nil
		},
	}
}

func newBetweenCmd() *cobra.Command {
	var n uint
	cmd := &cobra.Command{
		Use:   "between LOWER UPPER",
		Short: "Print keys strictly between two keys",
		Long:  "Print the midpoint of LOWER and UPPER, or -n evenly split keys. Equal bounds yield the key after LOWER.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			var out []rankkey.Key
			if n <= 1 {
				k, err := rankkey.Between(keys[0], keys[1])
				if err != nil {
					return err
				}
				out = []rankkey.Key{k}
			} else if out, err = rankkey.NKeysBetween(keys[0], keys[1], n); err != nil {
				return err
			}
			for _, k := range out {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().UintVarP(&n, "count", "n", 1, "number of keys")
	return cmd
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next KEY",
		Short: "Print the key after KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rankkey.Parse(args[0])
			if err != nil {
				return err
			}
			if k, err = rankkey.Next(k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
}

func newPrevCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prev KEY",
		Short: "Print the key before KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := rankkey.Parse(args[0])
			if err != nil {
				return err
			}
			if k, err = rankkey.Prev(k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
}

func newSpreadCmd() *cobra.Command {
	var bucket uint8
	cmd := &cobra.Command{
		Use:   "spread N",
		Short: "Print N evenly spaced keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("count %q: %w", args[0], err)
			}
			keys, err := rankkey.Spread(rankkey.Bucket(bucket), n)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().Uint8Var(&bucket, "bucket", 0, "bucket of the generated keys")
	return cmd
}
