package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ephemerchat/ephemer/internal/config"
	"github.com/ephemerchat/ephemer/internal/domain"
)

func newUserAddCmd() *cobra.Command {
	var (
		email string
		name  string
		role  string
		tier  string
	)

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account and print its API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if role != domain.RoleNameUser && role != domain.RoleNameAdmin {
				return fmt.Errorf("invalid role %q (user|admin)", role)
			}
			switch tier {
			case domain.TierFree, domain.TierPremium, domain.TierPro:
			default:
				return fmt.Errorf("invalid tier %q (free|premium|pro)", tier)
			}

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			_, users, closeStore, err := openStores(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			user := &domain.User{
				ID:          uuid.New().String(),
				Email:       email,
				DisplayName: name,
				Role:        role,
				Tier:        tier,
				APIToken:    uuid.New().String(),
				Limits:      domain.DefaultLimits(),
				CreatedAt:   time.Now(),
			}
			if err := users.Create(cmd.Context(), user); err != nil {
				return err
			}

			fmt.Printf("created user %s (%s, %s/%s)\n", user.ID, user.Email, user.Role, user.Tier)
			fmt.Printf("API token: %s\n", user.APIToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", domain.RoleNameUser, "role: user or admin")
	cmd.Flags().StringVar(&tier, "tier", domain.TierFree, "tier: free, premium or pro")
	return cmd
}
