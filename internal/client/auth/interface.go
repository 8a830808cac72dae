package auth

import (
	"context"

	"github.com/iudanet/medsync/pkg/api"
)

// Remote - часть api.Client, нужная для входа
type Remote interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	SetToken(token string)
}

// KeyHolder принимает ключ шифрования локальных данных (boltdb.Storage)
type KeyHolder interface {
	SetEncryptionKey(key []byte) error
}
