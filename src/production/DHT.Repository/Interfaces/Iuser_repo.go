package interfaces

import (
	"context"

	auth_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/auth"
)

type UserRepository interface {
	// FindUserByUsername returns nil, nil when no such user exists
	FindUserByUsername(ctx context.Context, username string) (*auth_models.UserAccount, error)

	// InsertUser creates a "user" role account. A duplicate username yields
	// apperrors.ErrUsernameTaken.
	InsertUser(ctx context.Context, username, passwordHash string) error
}
