package auth_models

// Roles assigned to accounts
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserAccount represents a registered mobile app user
type UserAccount struct {
	ID           int64  `json:"id" bson:"_id" db:"id"`
	Username     string `json:"username" bson:"username" db:"username"`
	PasswordHash string `json:"-" bson:"password" db:"password"` // never exposed in JSON
	Role         string `json:"role" bson:"role" db:"role"`
}

// NewUserAccount creates a regular user account from an already hashed password
func NewUserAccount(username, passwordHash string) *UserAccount {
	return &UserAccount{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         RoleUser,
	}
}
