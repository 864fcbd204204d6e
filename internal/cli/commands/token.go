package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/propsheet/internal/auth"
)

var (
	tokenSubjectFlag string
	tokenRolesFlag   []string
	tokenTTLFlag     time.Duration
)

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the property sheet server",
		Long: `Issue a signed token for the property sheet server.

The token is signed with auth.secret from propsheet.yml. Holders of the
editor role may write attributes and undo or redo commands.`,
		Example: `  # Token that allows edits for one hour
  propsheet token --subject alice --role editor`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}

	cmd.Flags().StringVar(&tokenSubjectFlag, "subject", "", "Subject the token is issued to")
	cmd.Flags().StringSliceVar(&tokenRolesFlag, "role", []string{auth.RoleEditor}, "Roles granted by the token")
	cmd.Flags().DurationVar(&tokenTTLFlag, "ttl", time.Hour, "Lifetime of the token")
	cmd.MarkFlagRequired("subject")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret must be set to issue tokens")
	}
	if tokenTTLFlag <= 0 {
		return fmt.Errorf("ttl must be positive, got: %s", tokenTTLFlag)
	}

	token, err := auth.NewService(cfg.Auth.Secret, tokenTTLFlag).GenerateToken(tokenSubjectFlag, tokenRolesFlag)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
