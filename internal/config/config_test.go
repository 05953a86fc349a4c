package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.JWTIssuer != "esign-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "esign-auth")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.OTPTTL() != 10*time.Minute {
		t.Errorf("OTPTTL = %v, want 10m", cfg.OTPTTL())
	}
	if cfg.OTPResendCooldown() != 60*time.Second {
		t.Errorf("OTPResendCooldown = %v, want 60s", cfg.OTPResendCooldown())
	}
	if cfg.FaceMatchThreshold != 0.90 {
		t.Errorf("FaceMatchThreshold = %v, want 0.90", cfg.FaceMatchThreshold)
	}
	if cfg.AuditKafkaTopic != "esign-audit" {
		t.Errorf("AuditKafkaTopic = %q, want esign-audit", cfg.AuditKafkaTopic)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.EnvelopeTypesFile != "config/envelope_types.yaml" {
		t.Errorf("EnvelopeTypesFile = %q", cfg.EnvelopeTypesFile)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("OTP_MAX_ATTEMPTS", "4")
	os.Setenv("FACE_MATCH_THRESHOLD", "0.95")
	os.Setenv("TRUST_SERVICE_URL", "https://trust.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.OTPMaxAttempts != 4 {
		t.Errorf("OTPMaxAttempts = %d, want 4", cfg.OTPMaxAttempts)
	}
	if cfg.FaceMatchThreshold != 0.95 {
		t.Errorf("FaceMatchThreshold = %v, want 0.95", cfg.FaceMatchThreshold)
	}
	if cfg.TrustServiceURL != "https://trust.example" {
		t.Errorf("TrustServiceURL = %q", cfg.TrustServiceURL)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("GRPC_ADDR", ":8080")
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_FaceMatchThresholdRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		err   bool
	}{
		{"one", "1", false},
		{"typical", "0.85", false},
		{"zero", "0", true},
		{"negative", "-0.5", true},
		{"above one", "1.2", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("GRPC_ADDR", ":8080")
			os.Setenv("FACE_MATCH_THRESHOLD", tc.value)

			_, err := Load()
			if tc.err && err == nil {
				t.Fatal("Load should return error")
			}
			if !tc.err && err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_OTPMaxAttemptsNegative(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("OTP_MAX_ATTEMPTS", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject negative OTP_MAX_ATTEMPTS")
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject APP_ENV=production without DATABASE_URL")
	}
	os.Setenv("DATABASE_URL", "postgres://localhost/esign")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with DATABASE_URL: %v", err)
	}
}

func TestLockTTL(t *testing.T) {
	testCases := []struct {
		name     string
		finalize string
		provider string
		want     time.Duration
	}{
		{"defaults", "", "", 2 * time.Minute},
		{"long finalize", "5m", "", 5*time.Minute + 10*time.Second + time.Minute},
		{"long provider", "30s", "2m", 30*time.Second + 2*time.Minute + time.Minute},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{FinalizeTimeoutRaw: tc.finalize, ProviderTimeoutRaw: tc.provider}
			if got := cfg.LockTTL(); got != tc.want {
				t.Errorf("LockTTL = %v, want %v", got, tc.want)
			}
			if cfg.LockTTL() <= cfg.FinalizeTimeout() {
				t.Errorf("LockTTL %v does not outlast FinalizeTimeout %v", cfg.LockTTL(), cfg.FinalizeTimeout())
			}
		})
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{"valid", "5m", 5 * time.Minute},
		{"invalid", "soon", 10 * time.Minute},
		{"zero", "0", 10 * time.Minute},
		{"negative", "-1m", 10 * time.Minute},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{OTPTTLRaw: tc.raw}
			if got := cfg.OTPTTL(); got != tc.want {
				t.Errorf("OTPTTL = %v, want %v", got, tc.want)
			}
		})
	}

	cfg := &Config{}
	if cfg.ProviderTimeout() != 10*time.Second {
		t.Errorf("ProviderTimeout default = %v", cfg.ProviderTimeout())
	}
	if cfg.FinalizeTimeout() != 30*time.Second {
		t.Errorf("FinalizeTimeout default = %v", cfg.FinalizeTimeout())
	}
}

func TestKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.KafkaBrokersList(); got != nil {
		t.Errorf("nil config: got %v", got)
	}
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
}
