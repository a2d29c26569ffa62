// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lovelog/lovelog/internal/auth"
)

// passwordFunc is the body of a password subcommand.
type passwordFunc func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error

func withPasswords(cmd *cobra.Command, deps *Deps, fn passwordFunc) error {
	return withBackend(cmd, deps, func(ctx context.Context, cmd *cobra.Command, b *Backend, logger *slog.Logger) error {
		pm, err := newPasswordManager(b, deps, logger)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, pm)
	})
}

// newPasswordCmd creates the password command group.
func newPasswordCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the couple and visitor passwords",
		Long: `Set, rotate, generate, revoke and inspect the passwords that guard the blog.
Secrets are prompted for without echo unless --password is given.`,
	}

	cmd.AddCommand(newSetupCmd(deps))
	cmd.AddCommand(newSetCoupleCmd(deps))
	cmd.AddCommand(newSetVisitorCmd(deps))
	cmd.AddCommand(newGenerateVisitorCmd(deps))
	cmd.AddCommand(newRevokeVisitorCmd(deps))
	cmd.AddCommand(newPasswordStatusCmd(deps))
	cmd.AddCommand(newPasswordHistoryCmd(deps))
	cmd.AddCommand(newPasswordTestCmd(deps))

	return cmd
}

// secretFrom returns --password when given and prompts otherwise.
func secretFrom(cmd *cobra.Command, deps *Deps, prompt string, confirm bool) (string, error) {
	if cmd.Flags().Changed("password") {
		return cmd.Flags().GetString("password")
	}
	return deps.ReadSecret(cmd, prompt, confirm)
}

func addPasswordFlag(cmd *cobra.Command) {
	cmd.Flags().String("password", "", "the password (prompted for when omitted; visible in shell history)")
}

// newSetupCmd walks through first-time setup: couple password, visitor
// password and encryption key.
func newSetupCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set the couple password, a visitor password and the encryption key",
		Long: `Prompt for the couple password, then set a visitor password and make sure
an encryption key exists. Use --generate-visitor to print a random visitor
password instead of typing one, or --skip-visitor to leave visitor access off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetInt("visitor-hours")
			generate, _ := cmd.Flags().GetBool("generate-visitor")
			skip, _ := cmd.Flags().GetBool("skip-visitor")
			if generate && skip {
				return oops.Code("CLI_INVALID_FLAGS").Errorf("--generate-visitor and --skip-visitor cannot be combined")
			}
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				couple, err := deps.ReadSecret(cmd, "Couple password: ", true)
				if err != nil {
					return err
				}
				if err := pm.SetCouplePassword(ctx, couple); err != nil {
					return err
				}
				cmd.Println("Couple password set")

				switch {
				case skip:
					cmd.Println("Visitor password skipped")
				case generate:
					grant, err := pm.GenerateVisitorPassword(ctx, hours, auth.DefaultGeneratedLength)
					if err != nil {
						return err
					}
					cmd.Println("Visitor password: " + grant.Password)
					cmd.Printf("Valid for %dh until %s\n", grant.Hours, formatTime(&grant.ExpiresAt))
				default:
					visitor, err := deps.ReadSecret(cmd, "Visitor password: ", true)
					if err != nil {
						return err
					}
					grant, err := pm.SetVisitorPassword(ctx, visitor, hours)
					if err != nil {
						return err
					}
					cmd.Printf("Visitor password set, valid for %dh until %s\n", grant.Hours, formatTime(&grant.ExpiresAt))
				}

				key, err := pm.EnsureEncryptionKey(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Encryption key ready, fingerprint %s\n", key.Fingerprint())
				return nil
			})
		},
	}
	cmd.Flags().Int("visitor-hours", auth.DefaultVisitorHours, "visitor access lifetime in hours (1-168)")
	cmd.Flags().Bool("generate-visitor", false, "generate a random visitor password")
	cmd.Flags().Bool("skip-visitor", false, "do not set a visitor password")
	return cmd
}

func newSetCoupleCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-couple",
		Short: "Set the couple password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				secret, err := secretFrom(cmd, deps, "New couple password: ", true)
				if err != nil {
					return err
				}
				if err := pm.SetCouplePassword(ctx, secret); err != nil {
					return err
				}
				cmd.Println("Couple password updated")
				return nil
			})
		},
	}
	addPasswordFlag(cmd)
	return cmd
}

func newSetVisitorCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-visitor",
		Short: "Set the visitor password and its lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetInt("hours")
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				secret, err := secretFrom(cmd, deps, "New visitor password: ", true)
				if err != nil {
					return err
				}
				grant, err := pm.SetVisitorPassword(ctx, secret, hours)
				if err != nil {
					return err
				}
				cmd.Printf("Visitor password updated, valid for %dh until %s\n", grant.Hours, formatTime(&grant.ExpiresAt))
				return nil
			})
		},
	}
	addPasswordFlag(cmd)
	cmd.Flags().Int("hours", auth.DefaultVisitorHours, "visitor access lifetime in hours (1-168)")
	return cmd
}

func newGenerateVisitorCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-visitor",
		Short: "Generate a random visitor password",
		Long: `Generate a random visitor password and print it once. It cannot be
recovered later; generate a new one if it is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetInt("hours")
			length, _ := cmd.Flags().GetInt("length")
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				grant, err := pm.GenerateVisitorPassword(ctx, hours, length)
				if err != nil {
					return err
				}
				cmd.Println("Visitor password: " + grant.Password)
				cmd.Printf("Valid for %dh until %s\n", grant.Hours, formatTime(&grant.ExpiresAt))
				return nil
			})
		},
	}
	cmd.Flags().Int("hours", auth.DefaultVisitorHours, "visitor access lifetime in hours (1-168)")
	cmd.Flags().Int("length", auth.DefaultGeneratedLength, "password length (6-20)")
	return cmd
}

func newRevokeVisitorCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-visitor",
		Short: "Revoke the visitor password and end visitor sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, deps, func(ctx context.Context, cmd *cobra.Command, b *Backend, logger *slog.Logger) error {
				pm, err := newPasswordManager(b, deps, logger)
				if err != nil {
					return err
				}
				ended, err := pm.RevokeVisitorPassword(ctx)
				if err != nil {
					return err
				}
				if b.LocalSessions {
					cmd.Println("Visitor password revoked")
					cmd.PrintErrln("Warning: session.store is memory; visitor sessions held by a running server stay open until it restarts")
					return nil
				}
				cmd.Printf("Visitor password revoked, %d session(s) ended\n", ended)
				return nil
			})
		},
	}
}

func newPasswordStatusCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which passwords are set and when the visitor password expires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				status, err := pm.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, status *auth.PasswordStatus) {
	if status.Couple.IsSet {
		cmd.Printf("Couple password:  set (updated %s)\n", formatTime(status.Couple.UpdatedAt))
	} else {
		cmd.Println("Couple password:  not set")
	}

	v := status.Visitor
	switch {
	case !v.IsSet:
		cmd.Println("Visitor password: not set")
	case v.IsExpired:
		cmd.Printf("Visitor password: expired at %s\n", formatTime(v.ExpiresAt))
	case v.ExpiresAt != nil:
		cmd.Printf("Visitor password: set (expires %s, %dh left)\n", formatTime(v.ExpiresAt), v.HoursLeft)
	default:
		cmd.Printf("Visitor password: set (updated %s)\n", formatTime(v.UpdatedAt))
	}

	if status.EncryptionKey.IsSet {
		cmd.Printf("Encryption key:   %s... (updated %s)\n", status.EncryptionKey.Fingerprint, formatTime(status.EncryptionKey.UpdatedAt))
	} else {
		cmd.Println("Encryption key:   not set")
	}
}

func newPasswordHistoryCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent password changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				items, err := pm.History(ctx, limit)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					cmd.Println("No password changes recorded")
					return nil
				}
				for _, item := range items {
					cmd.Printf("%s  %s\n", formatTime(&item.CreatedAt), item.Role.DisplayName())
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("limit", auth.HistoryLimit, "number of entries to show")
	return cmd
}

func newPasswordTestCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "test <couple|visitor>",
		Short:     "Check a password against the stored one",
		Long:      `Check a password against the stored hash without logging in. Exits non-zero on mismatch.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{auth.RoleCouple.String(), auth.RoleVisitor.String()},
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[0])
			if err != nil {
				return err
			}
			return withPasswords(cmd, deps, func(ctx context.Context, cmd *cobra.Command, pm *auth.PasswordManager) error {
				secret, err := secretFrom(cmd, deps, role.DisplayName()+": ", false)
				if err != nil {
					return err
				}
				ok, err := pm.Verify(ctx, role, secret)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("CLI_PASSWORD_MISMATCH").
						With("role", role.String()).
						Errorf("%s does not match", role.DisplayName())
				}
				cmd.Println(role.DisplayName() + " matches")

				if role.CanExpire() {
					status, err := pm.Status(ctx)
					if err != nil {
						return err
					}
					if status.Visitor.IsExpired {
						cmd.Printf("Note: it expired at %s and no longer grants access\n", formatTime(status.Visitor.ExpiresAt))
					}
				}
				return nil
			})
		},
	}
	addPasswordFlag(cmd)
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
