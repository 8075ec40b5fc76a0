package main

import (
	"github.com/spf13/cobra"

	ripple "github.com/Tap30/ripple-core-go"
)

func (a *app) flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Upload events left in durable storage",
		Long: `flush uploads the events a previous run left in file or badger storage,
for example after the collector was unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd, func(*ripple.Client) {})
		},
	}
}
