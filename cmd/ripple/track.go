package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	ripple "github.com/Tap30/ripple-core-go"
)

func (a *app) trackCmd() *cobra.Command {
	var (
		props string
		opts  ripple.EventOptions
	)
	cmd := &cobra.Command{
		Use:   "track <event-type>",
		Short: "Track an event",
		Example: `  ripple track page_view --props '{"page":"/home"}' --user-id u-42
  RIPPLE_API_KEY=... ripple track signup --device-id d-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var properties map[string]any
			if props != "" {
				if err := json.Unmarshal([]byte(props), &properties); err != nil {
					return fmt.Errorf("invalid --props: %w", err)
				}
			}
			return a.session(cmd, func(c *ripple.Client) {
				c.Track(args[0], properties, &opts)
			})
		},
	}
	cmd.Flags().StringVar(&props, "props", "", "event properties as a JSON object")
	addIdentityFlags(cmd, &opts)
	return cmd
}

func addIdentityFlags(cmd *cobra.Command, opts *ripple.EventOptions) {
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "user id of the event")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "device id of the event")
}
