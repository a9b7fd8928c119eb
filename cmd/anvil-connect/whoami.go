// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/spf13/cobra"
)

var errNotAuthenticated = errors.New("not logged in, run anvil-connect login")

// restore opens the relying party and restores its persisted session.
func (a *app) restore(ctx context.Context) (*rp, *oidc.Session, error) {
	r, err := a.newRP(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	s := r.client.Deserialize(ctx)
	if s.IsEmpty() {
		_ = r.Close()
		return nil, nil, errNotAuthenticated
	}
	return r, s, nil
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			r, s, err := a.restore(ctx)
			if err != nil {
				return err
			}
			defer r.Close()
			return printSession(cmd.OutOrStdout(), s)
		},
	}
}

func newUserInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "userinfo",
		Short: "Get the logged in user's claims from the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			r, _, err := a.restore(ctx)
			if err != nil {
				return err
			}
			defer r.Close()
			info, err := r.client.UserInfo(ctx)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(info, "", "    ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
			return err
		},
	}
}
