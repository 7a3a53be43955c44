package main

import (
	"os"

	"github.com/spf13/cobra"
)

func discoverCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <server-name>",
		Short: "Broadcast one discovery query and print the answering address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			con := newConsole(os.Stdout)
			d, err := g.cfg.Discoverer()
			if err != nil {
				return err
			}
			ip, ok := d.Lookup(cmd.Context(), args[0])
			if !ok {
				con.failure("%s not found", args[0])
				return nil
			}
			con.success("%s is at %s", args[0], ip)
			return nil
		},
	}
}
