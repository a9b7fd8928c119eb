// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout [path]",
		Short: "Forget the session and sign out of the provider",
		Long: `Forget the session and open the provider's signout page in the browser.
The provider returns the browser to path on the callback server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			r, err := a.newRP(ctx, false)
			if err != nil {
				return err
			}
			defer r.Close()

			r.client.Deserialize(ctx)
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			if err := r.client.Signout(ctx, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Logged out.")
			return nil
		},
	}
}
