package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration. It is loaded once at startup and
// passed to the services that need it; nothing reads it through a global.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Chain    ChainConfig    `yaml:"chain"`
	Auth     AuthConfig     `yaml:"auth"`
	NATS     NATSConfig     `yaml:"nats"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ChainConfig holds everything needed to talk to the chain node and the
// swap router, including the custodial signer used for server-side swaps.
type ChainConfig struct {
	RPCEndpoints   []string `yaml:"rpcEndpoints"`   // tried in order until one answers
	RouterContract string   `yaml:"routerContract"` // UniswapV2-style router address
	CoinType       string   `yaml:"coinType"`       // symbol recorded on wallet rows

	CustodianAddress    string `yaml:"custodianAddress"`
	CustodianPrivateKey string `yaml:"custodianPrivateKey"` // hex, no 0x prefix

	RPCTimeout int `yaml:"rpcTimeout"` // seconds, per RPC call
}

// AuthConfig holds the session-token and nonce-challenge settings.
type AuthConfig struct {
	Secret      string `yaml:"secret"`   // HMAC secret for session tokens and keystore encryption
	TokenTTL    int    `yaml:"tokenTTL"` // minutes a session token stays valid
	NonceTTL    int    `yaml:"nonceTTL"` // minutes a login challenge stays valid
	TokenIssuer string `yaml:"tokenIssuer"`
}

// NATSConfig holds the optional event-stream settings. An empty URL disables
// event publishing.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LoadConfig reads the yaml configuration file and applies environment
// variable overrides on top.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// overrideFromEnv lets deployment environments override file settings.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if rpc := os.Getenv("CHAIN_RPC_ENDPOINTS"); rpc != "" {
		endpoints := strings.Split(rpc, ",")
		config.Chain.RPCEndpoints = config.Chain.RPCEndpoints[:0]
		for _, e := range endpoints {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				config.Chain.RPCEndpoints = append(config.Chain.RPCEndpoints, trimmed)
			}
		}
	}
	if router := os.Getenv("ROUTER_ADDRESS"); router != "" {
		config.Chain.RouterContract = router
	}
	if addr := os.Getenv("CUSTODIAN_ADDRESS"); addr != "" {
		config.Chain.CustodianAddress = addr
	}
	if key := os.Getenv("CUSTODIAN_PRIV_KEY"); key != "" {
		config.Chain.CustodianPrivateKey = key
	}

	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		config.Auth.Secret = secret
	}
	if ttl := os.Getenv("NONCE_TTL_MINUTES"); ttl != "" {
		if t, err := strconv.Atoi(ttl); err == nil {
			config.Auth.NonceTTL = t
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
}

func (c *Config) validate() error {
	if len(c.Chain.RPCEndpoints) == 0 {
		return fmt.Errorf("chain.rpcEndpoints is required")
	}
	if c.Chain.RouterContract == "" {
		return fmt.Errorf("chain.routerContract is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	return nil
}

// Timeout returns the per-call RPC timeout, defaulting to 15 seconds.
func (c *ChainConfig) Timeout() time.Duration {
	if c.RPCTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RPCTimeout) * time.Second
}

// TokenTTLDuration returns the session token lifetime, defaulting to 24 hours.
func (c *AuthConfig) TokenTTLDuration() time.Duration {
	if c.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TokenTTL) * time.Minute
}

// NonceTTLDuration returns the challenge lifetime, defaulting to 5 minutes.
func (c *AuthConfig) NonceTTLDuration() time.Duration {
	if c.NonceTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.NonceTTL) * time.Minute
}

// Issuer returns the session token issuer name.
func (c *AuthConfig) Issuer() string {
	if c.TokenIssuer == "" {
		return "wallet-backend"
	}
	return c.TokenIssuer
}
