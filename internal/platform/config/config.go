package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/stitchfield/api/internal/platform/textutil"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultProtocolVersion      = "2025-09-29"
	defaultCurrency             = "USD"
	defaultTaxRateBps           = 800
	defaultMerchantBaseURL      = "https://merchant.example.com"
	defaultPaymentProvider      = "stripe"
	defaultVerifierMode         = "static"
	defaultVerifyTimeout        = 10 * time.Second
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Protocol    ProtocolConfig
	Checkout    CheckoutConfig
	PSP         PSPConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ProtocolConfig pins the commerce protocol surface exposed to agents.
type ProtocolConfig struct {
	// Version is the value the API-Version request header must carry.
	Version string
}

// CheckoutConfig tunes session derivation.
type CheckoutConfig struct {
	Currency        string
	TaxRateBps      int
	MerchantBaseURL string
}

// PSPConfig selects and configures the payment verifier.
type PSPConfig struct {
	// Provider is the descriptor advertised on every session
	// (stripe, usdc, stablecoin, ...).
	Provider                string
	SupportedPaymentMethods []string
	// VerifierMode picks the verification backend: "static" or "stripe".
	VerifierMode  string
	StripeAPIKey  string
	VerifyTimeout time.Duration
}

// AuthConfig controls the bearer-token request gate.
type AuthConfig struct {
	// APIKeys restricts accepted bearer tokens when non-empty; an empty
	// list accepts any non-empty token.
	APIKeys []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = textutil.CleanMap(values)
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Protocol: ProtocolConfig{
			Version: stringWithDefault(lookup, "API_PROTOCOL_VERSION", defaultProtocolVersion),
		},
		Checkout: CheckoutConfig{
			Currency:        stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency),
			TaxRateBps:      intWithDefault(lookup, "API_CHECKOUT_TAX_RATE_BPS", defaultTaxRateBps),
			MerchantBaseURL: stringWithDefault(lookup, "API_CHECKOUT_MERCHANT_BASE_URL", defaultMerchantBaseURL),
		},
		PSP: PSPConfig{
			Provider:                stringWithDefault(lookup, "API_PSP_PROVIDER", defaultPaymentProvider),
			SupportedPaymentMethods: csvWithDefault(lookup, "API_PSP_SUPPORTED_PAYMENT_METHODS"),
			VerifierMode:            strings.ToLower(stringWithDefault(lookup, "API_PSP_VERIFIER_MODE", defaultVerifierMode)),
			StripeAPIKey:            stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			VerifyTimeout:           durationWithDefault(lookup, "API_PSP_VERIFY_TIMEOUT", defaultVerifyTimeout),
		},
		Auth: AuthConfig{
			APIKeys: csvWithDefault(lookup, "API_AUTH_API_KEYS"),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if len(cfg.PSP.SupportedPaymentMethods) == 0 {
		cfg.PSP.SupportedPaymentMethods = []string{"card"}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Protocol.Version) == "" {
		missing = append(missing, "Protocol.Version")
	}
	if strings.TrimSpace(cfg.Checkout.Currency) == "" {
		missing = append(missing, "Checkout.Currency")
	}
	if cfg.Checkout.TaxRateBps < 0 {
		missing = append(missing, "Checkout.TaxRateBps")
	}
	if strings.TrimSpace(cfg.Checkout.MerchantBaseURL) == "" {
		missing = append(missing, "Checkout.MerchantBaseURL")
	}
	switch cfg.PSP.VerifierMode {
	case "static":
	case "stripe":
		if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
			missing = append(missing, "PSP.StripeAPIKey")
		}
	default:
		missing = append(missing, "PSP.VerifierMode")
	}
	if cfg.PSP.VerifyTimeout <= 0 {
		missing = append(missing, "PSP.VerifyTimeout")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return []string{}
	}
	return textutil.SplitCSV(raw)
}
