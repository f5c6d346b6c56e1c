// Package secrets resolves credentials for the consensus engine's services,
// preferring HashiCorp Vault when enabled and falling back to the values
// already loaded into internal/config from the environment.
package secrets

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/config"
)

// insecureDevTokens are well-known placeholder tokens that should never
// reach a production Vault deployment.
var insecureDevTokens = map[string]bool{
	"root": true,
	"dev":  true,
	"test": true,
}

// VaultConfig holds Vault connection configuration.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	AuthMethod string // "token", "kubernetes", "approle"
	MountPath  string
	SecretPath string
	Namespace  string
}

// GetVaultConfigFromEnv builds a VaultConfig from environment variables.
func GetVaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{Enabled: false}
	}

	return VaultConfig{
		Enabled:    true,
		Address:    getEnvOrDefault("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		AuthMethod: getEnvOrDefault("VAULT_AUTH_METHOD", "token"),
		MountPath:  getEnvOrDefault("VAULT_MOUNT_PATH", "secret"),
		SecretPath: getEnvOrDefault("VAULT_SECRET_PATH", "consensus-engine/production"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Client wraps the HashiCorp Vault SDK client, scoped to a single secret path.
type Client struct {
	client *vault.Client
	cfg    VaultConfig
}

// NewClient authenticates to Vault per cfg.AuthMethod and returns a Client.
func NewClient(cfg VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			cfg.Token = os.Getenv("VAULT_TOKEN")
		}
		if cfg.Token == "" {
			return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
		}
		if insecureDevTokens[cfg.Token] {
			log.Warn().Msg("vault token matches a known development placeholder")
		}
		client.SetToken(cfg.Token)

	case "kubernetes":
		if err := authenticateKubernetes(client, cfg); err != nil {
			return nil, fmt.Errorf("kubernetes authentication failed: %w", err)
		}

	case "approle":
		if err := authenticateAppRole(client); err != nil {
			return nil, fmt.Errorf("approle authentication failed: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported vault auth method: %s", cfg.AuthMethod)
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("secret_path", cfg.SecretPath).
		Msg("vault client initialized")

	return &Client{client: client, cfg: cfg}, nil
}

// GetSecret reads a KV v2 secret relative to the configured SecretPath.
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", c.cfg.MountPath, c.cfg.SecretPath, path)

	secret, err := c.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("read secret from vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

func authenticateKubernetes(client *vault.Client, cfg VaultConfig) error {
	jwt, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/token")
	if err != nil {
		return fmt.Errorf("read service account token: %w", err)
	}

	role := getEnvOrDefault("VAULT_K8S_ROLE", "consensus-engine")
	secret, err := client.Logical().Write("auth/kubernetes/login", map[string]interface{}{
		"jwt":  string(jwt),
		"role": role,
	})
	if err != nil {
		return fmt.Errorf("login with kubernetes auth: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("kubernetes authentication returned no token")
	}
	client.SetToken(secret.Auth.ClientToken)
	return nil
}

func authenticateAppRole(client *vault.Client) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set for approle authentication")
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("login with approle: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("approle authentication returned no token")
	}
	client.SetToken(secret.Auth.ClientToken)
	return nil
}

// LoadSecretsFromVault overlays cfg's database, market-data and Telegram
// credentials with values read from Vault, when Vault integration is
// enabled. Missing individual secrets are logged and skipped so the caller
// can fall back to whatever was already loaded from the environment.
func LoadSecretsFromVault(ctx context.Context, cfg *config.Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Info().Msg("vault integration disabled, using environment-sourced secrets")
		return nil
	}

	client, err := NewClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("create vault client: %w", err)
	}

	if err := loadDatabaseSecrets(ctx, client, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to load database secrets from vault")
	}
	if err := loadMarketDataSecrets(ctx, client, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to load market-data secrets from vault")
	}
	if err := loadTelegramSecrets(ctx, client, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to load telegram secrets from vault")
	}

	log.Info().Msg("secrets loaded from vault")
	return nil
}

func loadDatabaseSecrets(ctx context.Context, c *Client, cfg *config.Config) error {
	data, err := c.GetSecret(ctx, "database")
	if err != nil {
		return err
	}
	if password, ok := data["password"].(string); ok && password != "" {
		cfg.Database.Password = password
	}
	if user, ok := data["user"].(string); ok && user != "" {
		cfg.Database.User = user
	}
	return nil
}

func loadMarketDataSecrets(ctx context.Context, c *Client, cfg *config.Config) error {
	data, err := c.GetSecret(ctx, "market_data")
	if err != nil {
		return err
	}
	if apiKey, ok := data["api_key"].(string); ok && apiKey != "" {
		cfg.MarketData.APIKey = apiKey
	}
	if secretKey, ok := data["secret_key"].(string); ok && secretKey != "" {
		cfg.MarketData.SecretKey = secretKey
	}
	return nil
}

func loadTelegramSecrets(ctx context.Context, c *Client, cfg *config.Config) error {
	if !cfg.Telegram.Enabled {
		return nil
	}
	data, err := c.GetSecret(ctx, "telegram")
	if err != nil {
		return err
	}
	if token, ok := data["bot_token"].(string); ok && token != "" {
		cfg.Telegram.BotToken = token
	}
	return nil
}
