// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// newSessionsCmd creates the sessions command group.
func newSessionsCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete sessions past their lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, deps, func(ctx context.Context, cmd *cobra.Command, b *Backend, logger *slog.Logger) error {
				if b.LocalSessions {
					return errLocalSessions("prune sessions")
				}
				removed, err := b.Sessions.DeleteExpired(ctx, deps.Now())
				if err != nil {
					return oops.Code("CLI_PRUNE_FAILED").With("operation", "delete expired sessions").Wrap(err)
				}
				logger.Info("pruned expired sessions", "count", removed)
				cmd.Printf("Removed %d expired session(s)\n", removed)
				return nil
			})
		},
	})

	return cmd
}
