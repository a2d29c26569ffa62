// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lovelog/lovelog/internal/config"
)

// newConfigCmd creates the config command group.
func newConfigCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			out, err := yaml.Marshal(&redacted)
			if err != nil {
				return oops.Code("CLI_CONFIG_ENCODE_FAILED").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the config file and the configuration the server would start with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateConfigFile(cmd); err != nil {
				printDetails(cmd, err)
				return err
			}
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				printDetails(cmd, err)
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	})

	return cmd
}

// validateConfigFile checks the config file against the schema. A missing
// default file is fine; a missing --config file is left to loadConfig.
func validateConfigFile(cmd *cobra.Command) error {
	path, _ := configPath(cmd)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := config.ValidateFile(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

// printDetails lists the validation messages attached to err on stderr.
func printDetails(cmd *cobra.Command, err error) {
	for _, detail := range errDetails(err) {
		cmd.PrintErrln("  - " + detail)
	}
}
