package courseauth

import (
	"errors"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flexyzwork/courseauth/jwt"
	"github.com/flexyzwork/courseauth/password"
	"github.com/flexyzwork/courseauth/rate"
	"github.com/flexyzwork/courseauth/store"
)

// Builder wires a Manager from its dependencies. A Builder is single use.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials CredentialStore
	logger      *slog.Logger

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the revocation store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account source used to verify logins.
func (b *Builder) WithCredentialStore(cs CredentialStore) *Builder {
	b.credentials = cs
	return b
}

// WithLogger sets the structured logger. Without one, the Manager logs
// nowhere.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and assembles the Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	passwords, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	kv := store.New(b.redis, b.config.Store.KeyPrefix, b.config.Store.OpTimeout)
	limiter := rate.New(kv, rate.Config{
		MaxAttempts:      b.config.RateLimit.MaxLoginAttempts,
		Window:           b.config.RateLimit.AttemptWindow,
		EnableIPThrottle: b.config.RateLimit.EnableIPThrottle,
	})

	b.built = true

	return &Manager{
		config:      b.config,
		kv:          kv,
		limiter:     limiter,
		tokens:      tokens,
		passwords:   passwords,
		credentials: b.credentials,
		logger:      logger,
	}, nil
}
