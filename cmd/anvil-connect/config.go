// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/oidc"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr   = "localhost:8400"
	defaultCallbackPath = "/callback"
	defaultTimeout      = 2 * time.Minute
)

// Config is the CLI's configuration file.  Values may reference environment
// variables as ${NAME}.
type Config struct {
	Issuer       string   `yaml:"issuer" validate:"required,url"`
	ClientID     string   `yaml:"client_id" validate:"required"`
	Scopes       []string `yaml:"scopes" validate:"dive,required"`
	ResponseType string   `yaml:"response_type" validate:"omitempty,response_type"`
	Display      string   `yaml:"display" validate:"omitempty,oneof=page popup"`

	// CACert is a PEM file of the CA which signed the provider's certificate.
	CACert string `yaml:"ca_cert" validate:"omitempty,file"`

	// JWKSURL replaces discovery of the provider's keys with a cached JWKS.
	JWKSURL string `yaml:"jwks_url" validate:"omitempty,url"`

	// JWKSNoCache fetches the JWKS at JWKSURL whenever a token names a key
	// it hasn't seen, instead of refreshing a cached copy.
	JWKSNoCache bool `yaml:"jwks_no_cache"`

	// PublicKeys are PEM files of the keys tokens are signed with.  They
	// replace discovery of the provider's keys.
	PublicKeys  []string `yaml:"public_keys" validate:"dive,file"`
	SigningAlgs []string `yaml:"signing_algs" validate:"dive,signing_alg"`

	// ListenAddr is the loopback address of the callback server.  Port 0
	// picks a free port.
	ListenAddr   string `yaml:"listen_addr" validate:"required,listen_addr"`
	CallbackPath string `yaml:"callback_path" validate:"required,startswith=/"`

	// StateDir holds the session files when Redis isn't configured.
	StateDir string       `yaml:"state_dir" validate:"required"`
	Redis    *RedisConfig `yaml:"redis"`

	// Timeout bounds how long login waits for the provider.
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig stores sessions in Redis, shared by every CLI using it.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// LoadConfig reads, expands and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig expands environment variables in data, then decodes and
// validates it.
func ParseConfig(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}
	if err := c.setDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) setDefaults() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.CallbackPath == "" {
		c.CallbackPath = defaultCallbackPath
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.StateDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("state_dir is not set and there's no user config dir: %w", err)
		}
		c.StateDir = filepath.Join(dir, "anvil-connect")
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var result *multierror.Error
	for _, e := range verrs {
		result = multierror.Append(result, fmt.Errorf("%s: failed %q validation", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag()))
	}
	return result.ErrorOrNil()
}

// oidcOptions returns the oidc.Config options the file selects.
func (c *Config) oidcOptions() []oidc.Option {
	opts := []oidc.Option{oidc.WithScopes(c.Scopes...)}
	if c.ResponseType != "" {
		opts = append(opts, oidc.WithResponseType(oidc.ResponseType(c.ResponseType)))
	}
	if c.Display != "" {
		opts = append(opts, oidc.WithDisplay(oidc.Display(c.Display)))
	}
	return opts
}

func (c *Config) supportedAlgs() []jwt.Alg {
	algs := make([]jwt.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, jwt.Alg(a))
	}
	return algs
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("response_type", func(fl validator.FieldLevel) bool {
		return oidc.ResponseType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil {
			return false
		}
		_, err = strconv.ParseUint(port, 10, 16)
		return err == nil
	})
	_ = v.RegisterValidation("signing_alg", func(fl validator.FieldLevel) bool {
		return jwt.SupportedSigningAlgorithm(jwt.Alg(fl.Field().String()))
	})
	return v
}
