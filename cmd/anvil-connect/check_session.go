// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckSessionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-session",
		Short: "Print the OpenID Connect session management message",
		Long: `Print the message a relying party posts to the provider's check session
frame, and the origin it's posted to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			r, _, err := a.restore(ctx)
			if err != nil {
				return err
			}
			defer r.Close()
			message, origin := r.client.CheckSessionMessage()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "message: %s\norigin:  %s\n", message, origin)
			return err
		},
	}
}
