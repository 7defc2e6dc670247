package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	salesman "github.com/cloudxsgmbh/salesman-go"
)

func newDescribeCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "describe <object>",
		Short: "Print the normalized description of a remote object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			sm, err := connect(ctx, salesman.Options{})
			if err != nil {
				return err
			}
			sess, err := sm.Connection().Session(ctx)
			if err != nil {
				return err
			}
			payload, err := sess.SObject(args[0]).Describe(ctx)
			if err != nil {
				return err
			}
			var v any = payload
			if !raw {
				v = salesman.NormalizeDescribe(payload)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the payload as returned by the API")
	return cmd
}
