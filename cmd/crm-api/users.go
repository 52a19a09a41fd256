package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"crm-api/internal/config"
	"crm-api/internal/database"
	"crm-api/internal/domain"
	"crm-api/internal/repo"
	"crm-api/internal/validation"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// userCreator is the subset of the user repository the bootstrap needs.
type userCreator interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type newUser struct {
	Email    string
	FullName string
	Role     string
	TeamID   string
	Password string
}

var errUserExists = errors.New("user already exists")

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage CRM users",
}

var createUserInput newUser

var createUserCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long: `Create a user with a bcrypt-hashed password. The password is read from
CRM_USER_PASSWORD so it never shows up in shell history.`,
	RunE: runCreateUser,
}

func init() {
	f := createUserCmd.Flags()
	f.StringVar(&createUserInput.Email, "email", "", "user e-mail (required)")
	f.StringVar(&createUserInput.FullName, "name", "", "full name")
	f.StringVar(&createUserInput.Role, "role", string(domain.RoleSales), "role: owner, administrator, leader, sales, collaborator, partner or client")
	f.StringVar(&createUserInput.TeamID, "team", "", "team id")
	_ = createUserCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(createUserCmd)
	rootCmd.AddCommand(usersCmd)
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns:       2,
		SimpleProtocol: cfg.DBSimpleProtocol,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	in := createUserInput
	in.Password = os.Getenv("CRM_USER_PASSWORD")

	u, err := createUser(ctx, repo.NewUserRepo(pool), cfg.PasswordPolicy(), bcrypt.DefaultCost, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ User created: %s (%s, %s)\n", u.ID, u.Email, u.Role)
	return nil
}

func createUser(ctx context.Context, store userCreator, policy validation.PasswordPolicy, cost int, in newUser) (*domain.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(in.Role)))
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", in.Role)
	}
	if in.Password == "" {
		return nil, errors.New("CRM_USER_PASSWORD is required")
	}
	if violations := validation.ValidatePassword(in.Password, policy); len(violations) > 0 {
		return nil, errors.New(validation.PasswordError(violations))
	}

	_, err := store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", errUserExists, email)
	case !errors.Is(err, repo.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	u := &domain.User{
		ID:           id.String(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         role,
		PasswordHash: string(hash),
	}
	if team := strings.TrimSpace(in.TeamID); team != "" {
		u.TeamID = &team
	}
	if err := store.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
