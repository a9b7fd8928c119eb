// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "anvil-connect.yaml"
	logLevelEnv       = "ANVIL_LOG_LEVEL"
)

// app is what every command shares.
type app struct {
	configFile string
	envFile    string
	verbose    bool

	openURL func(string) error
	logger  hclog.Logger
	config  *Config
}

func newRootCmd(open func(string) error) *cobra.Command {
	a := &app{openURL: open}
	cmd := &cobra.Command{
		Use:           "anvil-connect",
		Short:         "Sign in to an OpenID Connect provider from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", defaultConfigFile, "config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "file of environment variables to load, if present")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newLoginCmd(a),
		newCallbackCmd(a),
		newWhoamiCmd(a),
		newUserInfoCmd(a),
		newLogoutCmd(a),
		newCheckSessionCmd(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file: %w", err)
	}

	level := hclog.Info
	if l := hclog.LevelFromString(os.Getenv(logLevelEnv)); l != hclog.NoLevel {
		level = l
	}
	if a.verbose {
		level = hclog.Debug
	}
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "anvil-connect",
		Level:  level,
		Output: cmd.ErrOrStderr(),
	})

	c, err := LoadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("load config file %q: %w", a.configFile, err)
	}
	a.config = c
	return nil
}

// commandContext bounds ctx by the configured timeout.
func (a *app) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.Timeout)
}
