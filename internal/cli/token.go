package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalbox/fiscalbox/internal/access"
	"github.com/fiscalbox/fiscalbox/internal/config"
)

// NewTokenCommand creates the capability-token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue capability tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(rootOpts))
	return cmd
}

func newTokenIssueCommand(rootOpts *RootOptions) *cobra.Command {
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:           "issue",
		Short:         "Sign a capability token with the configured key",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			r := access.Role(role)
			if r != access.RoleStandard && r != access.RolePrivileged {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", role))
			}
			if ttl <= 0 {
				ttl = cfg.Access.TokenTTL
			}
			token, err := access.IssueToken(r, cfg.Access.SigningKey, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "issue token", err)
			}
			if f.Format == "json" {
				return f.Success(map[string]string{"token": token, "role": role})
			}
			fmt.Fprintln(f.Writer, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(access.RolePrivileged), "role to embed (standard|privileged)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from environment)")
	return cmd
}
