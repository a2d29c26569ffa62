// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lovelog/lovelog/internal/auth"
)

// newKeyCmd creates the key command group.
func newKeyCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the client encryption key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate",
		Short: "Replace the encryption key",
		Long: `Replace the encryption key handed to clients. Only the fingerprint is
printed; signed-in couples can fetch the full key from the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				key, err := pm.RegenerateEncryptionKey(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Encryption key regenerated, fingerprint %s\n", key.Fingerprint())
				return nil
			})
		},
	})

	return cmd
}
