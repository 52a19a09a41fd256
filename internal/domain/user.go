package domain

import (
	"time"
)

// User representa um usuário autenticado do CRM.
// Schema: public.users
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FullName     string    `json:"full_name" db:"full_name"`
	Role         Role      `json:"role" db:"role"`
	TeamID       *string   `json:"team_id,omitempty" db:"team_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_date" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_date" db:"updated_at"`
}

// ChangePasswordRequest DTO para POST /v1/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// MeResponse é a resposta de GET /v1/me.
type MeResponse struct {
	User        *User              `json:"user"`
	Superuser   bool               `json:"superuser"`
	Permissions map[Resource]Grant `json:"permissions"`
	LoadedAt    time.Time          `json:"loaded_at"`
}
