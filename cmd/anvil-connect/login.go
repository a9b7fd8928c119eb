// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var display string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if display != "" {
				a.config.Display = display
				if err := a.config.Validate(); err != nil {
					return err
				}
			}
			// handle ctrl-c while waiting for the callback
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := a.commandContext(ctx)
			defer cancel()
			return a.login(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&display, "display", "", `how the provider is opened: "page" or "popup"`)
	return cmd
}

func (a *app) login(ctx context.Context, out, status io.Writer) error {
	r, err := a.newRP(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			a.logger.Warn("unable to clean up", "error", err)
		}
	}()

	if err := r.client.PrepareAuthorization(ctx); err != nil {
		return fmt.Errorf("unable to load the provider's keys: %w", err)
	}
	fmt.Fprintf(status, "Complete the login via your OIDC provider in the browser.\n")

	s, err := r.client.Authorize(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		// the browser was sent to the provider; it comes back to the
		// callback page, which reports where it landed
		href, err := r.host.WaitForCallback(ctx)
		if err != nil {
			return fmt.Errorf("timed out waiting for response from provider: %w", err)
		}
		r.host.SetHref(href)
		if s, err = r.client.Authorize(ctx); err != nil {
			return err
		}
	}
	if _, err := r.client.Destination().GetAndClear(ctx); err != nil {
		a.logger.Warn("unable to clear destination", "error", err)
	}
	return printSession(out, s)
}

func newCallbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <url>",
		Short: "Complete a login with the address the provider redirected the browser to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			r, err := a.newRP(ctx, false)
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.client.PrepareAuthorization(ctx); err != nil {
				return fmt.Errorf("unable to load the provider's keys: %w", err)
			}
			r.host.SetHref(args[0])
			if r.host.Hash() == "" {
				return fmt.Errorf("%s has no callback response", args[0])
			}
			s, err := r.client.Authorize(ctx)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), s)
		},
	}
}

// sessionSummary is what the CLI prints about a session.  Tokens are
// omitted.
type sessionSummary struct {
	Subject      string                 `json:"subject,omitempty"`
	Expires      *time.Time             `json:"expires,omitempty"`
	SessionState string                 `json:"session_state,omitempty"`
	Claims       map[string]interface{} `json:"claims,omitempty"`
	UserInfo     map[string]interface{} `json:"userinfo,omitempty"`
}

func printSession(w io.Writer, s *oidc.Session) error {
	summary := sessionSummary{
		Subject:      s.Subject(),
		SessionState: s.SessionState,
		Claims:       s.IDClaims,
		UserInfo:     s.UserInfo,
	}
	if summary.Claims == nil {
		summary.Claims = s.AccessClaims
	}
	if exp, ok := summary.Claims["exp"].(float64); ok {
		t := time.Unix(int64(exp), 0).UTC()
		summary.Expires = &t
	}
	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
