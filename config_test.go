package courseauth

import (
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef012345678")
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access TTL", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"access TTL above refresh TTL", func(c *Config) { c.JWT.AccessTTL = 8 * 24 * time.Hour }},
		{"short access secret", func(c *Config) { c.JWT.AccessSecret = []byte("short") }},
		{"short refresh secret", func(c *Config) { c.JWT.RefreshSecret = []byte("short") }},
		{"identical secrets", func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret }},
		{"excessive leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }},
		{"empty key prefix", func(c *Config) { c.Store.KeyPrefix = "" }},
		{"zero max attempts", func(c *Config) { c.RateLimit.MaxLoginAttempts = 0 }},
		{"zero attempt window", func(c *Config) { c.RateLimit.AttemptWindow = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestCloneConfigIsolatesSecrets(t *testing.T) {
	cfg := validConfig()
	clone := cloneConfig(cfg)

	clone.JWT.AccessSecret[0] ^= 0xff
	if cfg.JWT.AccessSecret[0] == clone.JWT.AccessSecret[0] {
		t.Fatal("clone shares secret backing array")
	}
}
