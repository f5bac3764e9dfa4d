package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reg-consumer/internal/regulator"
	"reg-consumer/internal/web"
)

var addr string

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the state of a running consumer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		s, err := web.NewClient(addr).State(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <enabled|disabled|1|0>",
	Short: "Request a state change on a running consumer",
	Long: `Request a state change on a running consumer.

The daemon accepts the write even if the supply refuses it, so set reads the
state back and fails when it does not match.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		want, err := regulator.ParseState(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		c := web.NewClient(addr)
		if err := c.SetState(ctx, args[0]); err != nil {
			return err
		}
		got, err := c.State(ctx)
		if err != nil {
			return err
		}
		if got != want.String() {
			return fmt.Errorf("supply refused transition: state is %s", got)
		}
		fmt.Fprintln(cmd.OutOrStdout(), got)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{getCmd, setCmd} {
		c.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Address of the running consumer")
	}
}
