// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; when empty the server runs on in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key or path to file; only cmd/seed uses it to mint dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to validate actor access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (4–31) for ID numbers kept on party records; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTP policy. Durations are parsed by the accessor methods below.
	OTPTTLRaw            string `mapstructure:"OTP_TTL"`
	OTPResendCooldownRaw string `mapstructure:"OTP_RESEND_COOLDOWN"`
	OTPMaxAttempts       int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPReturnToClient when true stores codes in the dev OTP store instead of sending them. Refused in production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// FaceMatchThreshold is the minimum confidence (0,1] a document scan + selfie match must reach.
	FaceMatchThreshold float64 `mapstructure:"FACE_MATCH_THRESHOLD"`
	// ProviderTimeoutRaw bounds calls to the eID and KYC providers (e.g. "10s").
	ProviderTimeoutRaw string `mapstructure:"PROVIDER_TIMEOUT"`
	// FinalizeTimeoutRaw bounds the trust-service finalize call (e.g. "30s").
	FinalizeTimeoutRaw string `mapstructure:"FINALIZE_TIMEOUT"`

	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// SMTPAddr is host:port of the mail relay used for email OTP delivery.
	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	TrustServiceURL    string `mapstructure:"TRUST_SERVICE_URL"`
	TrustServiceAPIKey string `mapstructure:"TRUST_SERVICE_API_KEY"`
	// TSAURL is the RFC 3161 time-stamping authority endpoint.
	TSAURL       string `mapstructure:"TSA_URL"`
	TSAPolicyOID string `mapstructure:"TSA_POLICY_OID"`

	KYCProviderURL string `mapstructure:"KYC_PROVIDER_URL"`
	KYCAPIKey      string `mapstructure:"KYC_API_KEY"`

	EIDProviderURL string `mapstructure:"EID_PROVIDER_URL"`
	EIDIssuer      string `mapstructure:"EID_ISSUER"`
	EIDAudience    string `mapstructure:"EID_AUDIENCE"`
	// EIDPublicKey is the PEM public key (or path) the eID provider signs assertions with.
	EIDPublicKey string `mapstructure:"EID_PUBLIC_KEY"`

	// RedisURL enables the distributed session lock when set.
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated broker list; when set, audit events are exported to AuditKafkaTopic.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// Worker-only: consumer group and Loki push URL for the audit archive worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables tracing/metrics export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	EnvelopeTypesFile string `mapstructure:"ENVELOPE_TYPES_FILE"`
	// SigningPolicyFile optionally overrides the embedded Rego signing policy.
	SigningPolicyFile string `mapstructure:"SIGNING_POLICY_FILE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "esign-auth")
	v.SetDefault("JWT_AUDIENCE", "esign-api")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("FACE_MATCH_THRESHOLD", 0.90)
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("FINALIZE_TIMEOUT", "30s")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("TRUST_SERVICE_URL", "")
	v.SetDefault("TRUST_SERVICE_API_KEY", "")
	v.SetDefault("TSA_URL", "")
	v.SetDefault("TSA_POLICY_OID", "")
	v.SetDefault("KYC_PROVIDER_URL", "")
	v.SetDefault("KYC_API_KEY", "")
	v.SetDefault("EID_PROVIDER_URL", "")
	v.SetDefault("EID_ISSUER", "")
	v.SetDefault("EID_AUDIENCE", "esign-signing")
	v.SetDefault("EID_PUBLIC_KEY", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "esign-audit")
	v.SetDefault("KAFKA_GROUP_ID", "esign-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("ENVELOPE_TYPES_FILE", "config/envelope_types.yaml")
	v.SetDefault("SIGNING_POLICY_FILE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.DatabaseURL == "" && cfg.Env == "production" {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OTPMaxAttempts == 0 {
		cfg.OTPMaxAttempts = 5
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}

	if cfg.FaceMatchThreshold <= 0 || cfg.FaceMatchThreshold > 1 {
		return nil, errors.New("config: FACE_MATCH_THRESHOLD must be in (0, 1]")
	}

	return &cfg, nil
}

// OTPTTL returns how long an issued OTP stays valid. Returns 10m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return parseDuration(c.OTPTTLRaw, 10*time.Minute)
}

// OTPResendCooldown returns the minimum gap between OTP issuances. Returns 60s if unset or invalid.
func (c *Config) OTPResendCooldown() time.Duration {
	return parseDuration(c.OTPResendCooldownRaw, 60*time.Second)
}

// ProviderTimeout bounds identity provider calls. Returns 10s if unset or invalid.
func (c *Config) ProviderTimeout() time.Duration {
	return parseDuration(c.ProviderTimeoutRaw, 10*time.Second)
}

// FinalizeTimeout bounds the trust-service finalize call. Returns 30s if unset or invalid.
func (c *Config) FinalizeTimeout() time.Duration {
	return parseDuration(c.FinalizeTimeoutRaw, 30*time.Second)
}

// LockTTL is how long a session lock may be held. It covers one provider call plus the
// finalize call with a minute to spare, and never drops below 2m.
func (c *Config) LockTTL() time.Duration {
	ttl := c.FinalizeTimeout() + c.ProviderTimeout() + time.Minute
	if ttl < 2*time.Minute {
		return 2 * time.Minute
	}
	return ttl
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means audit export is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
