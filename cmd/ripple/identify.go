package main

import (
	"errors"

	"github.com/spf13/cobra"

	ripple "github.com/Tap30/ripple-core-go"
)

func (a *app) identifyCmd() *cobra.Command {
	var (
		set   map[string]string
		unset []string
		opts  ripple.EventOptions
	)
	cmd := &cobra.Command{
		Use:     "identify",
		Short:   "Update user properties",
		Example: `  ripple identify --user-id u-42 --set plan=pro --set seats=3 --unset trial`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(set) == 0 && len(unset) == 0 {
				return errors.New("at least one --set or --unset is required")
			}
			id := ripple.NewIdentify()
			for k, v := range set {
				id.Set(k, v)
			}
			for _, k := range unset {
				id.Unset(k)
			}
			return a.session(cmd, func(c *ripple.Client) {
				c.IdentifyWith(id, &opts)
			})
		},
	}
	cmd.Flags().StringToStringVar(&set, "set", nil, "property to set, as key=value")
	cmd.Flags().StringSliceVar(&unset, "unset", nil, "property to remove")
	addIdentityFlags(cmd, &opts)
	return cmd
}
