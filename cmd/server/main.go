// Command server runs the signing workflow gRPC API.
package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esign-workflow/internal/audit"
	"esign-workflow/internal/audit/publisher"
	auditrepo "esign-workflow/internal/audit/repository"
	"esign-workflow/internal/config"
	"esign-workflow/internal/consent"
	"esign-workflow/internal/db"
	"esign-workflow/internal/devotp"
	devotphandler "esign-workflow/internal/devotp/handler"
	envrepo "esign-workflow/internal/envelope/repository"
	"esign-workflow/internal/envelopetype"
	healthhandler "esign-workflow/internal/health/handler"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/identity/eid"
	"esign-workflow/internal/identity/facematch"
	"esign-workflow/internal/identity/manual"
	"esign-workflow/internal/otp"
	otpdomain "esign-workflow/internal/otp/domain"
	"esign-workflow/internal/otp/email"
	otprepo "esign-workflow/internal/otp/repository"
	"esign-workflow/internal/otp/sms"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/policy/engine"
	"esign-workflow/internal/security"
	"esign-workflow/internal/server"
	"esign-workflow/internal/signing/lock"
	sessionrepo "esign-workflow/internal/signing/repository"
	"esign-workflow/internal/signing/service"
	telemetryotel "esign-workflow/internal/telemetry/otel"
	"esign-workflow/internal/trust"
	"esign-workflow/internal/trust/rfc3161"
)

// stores are the repositories, backed by Postgres or by memory when DATABASE_URL is empty.
type stores struct {
	sessions  sessionrepo.Repository
	envelopes envrepo.Repository
	parties   partyrepo.Repository
	audit     auditrepo.Repository
	otp       otprepo.Repository
	tx        db.TxRunner
	pinger    healthhandler.Pinger
}

func openStores(sqlDB *sql.DB) stores {
	if sqlDB == nil {
		log.Println("server: DATABASE_URL not set, using in-memory stores")
		return stores{
			sessions:  sessionrepo.NewMemoryRepository(),
			envelopes: envrepo.NewMemoryRepository(),
			parties:   partyrepo.NewMemoryRepository(),
			audit:     auditrepo.NewMemoryRepository(),
			otp:       otprepo.NewMemoryRepository(),
			tx:        db.DirectRunner{},
		}
	}
	return stores{
		sessions:  sessionrepo.NewPostgresRepository(sqlDB),
		envelopes: envrepo.NewPostgresRepository(sqlDB),
		parties:   partyrepo.NewPostgresRepository(sqlDB),
		audit:     auditrepo.NewPostgresRepository(sqlDB),
		otp:       otprepo.NewPostgresRepository(sqlDB),
		tx:        db.NewSQLTxRunner(sqlDB),
		pinger:    sqlDB,
	}
}

// otpSender routes codes by channel. With OTP_RETURN_TO_CLIENT every channel goes to the dev store.
func otpSender(cfg *config.Config, devStore devotp.Store) otp.Sender {
	router := otp.NewRouter()
	if devStore != nil {
		dev := devotp.NewSender(devStore)
		return router.Handle(otpdomain.ChannelSMS, dev).Handle(otpdomain.ChannelEmail, dev)
	}
	if cfg.SMSLocalAPIKey != "" {
		router.Handle(otpdomain.ChannelSMS, sms.NewClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	}
	if cfg.SMTPAddr != "" {
		router.Handle(otpdomain.ChannelEmail, email.NewSender(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword))
	}
	return router
}

func verifiers(cfg *config.Config, parties partyrepo.Repository, hasher *security.Hasher) *identity.Verifiers {
	vs := []identity.Verifier{manual.NewVerifier(parties, hasher)}
	if cfg.KYCProviderURL != "" {
		analyzer := facematch.NewHTTPAnalyzer(cfg.KYCProviderURL, cfg.KYCAPIKey, cfg.ProviderTimeout())
		vs = append(vs, facematch.NewVerifier(analyzer, cfg.FaceMatchThreshold, cfg.ProviderTimeout()))
	}
	if cfg.EIDPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.EIDPublicKey)
		if err != nil {
			log.Fatalf("eid: public key: %v", err)
		}
		vs = append(vs, eid.NewVerifier(eid.Config{
			BaseURL:   cfg.EIDProviderURL,
			Issuer:    cfg.EIDIssuer,
			Audience:  cfg.EIDAudience,
			PublicKey: pub,
			Timeout:   cfg.ProviderTimeout(),
		}, parties, hasher))
	}
	return identity.NewVerifiers(vs...)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.Setup(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "esign-server",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		sqlDB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
	}
	st := openStores(sqlDB)

	types, err := envelopetype.LoadFile(cfg.EnvelopeTypesFile)
	if err != nil {
		log.Fatalf("envelope types: %v", err)
	}
	policy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.SigningPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, 0)

	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		log.Println("server: OTP_RETURN_TO_CLIENT enabled, codes are readable through DevService")
	}
	otpSvc := otp.NewService(st.otp, otpSender(cfg, devStore), otp.Policy{
		TTL:            cfg.OTPTTL(),
		ResendCooldown: cfg.OTPResendCooldown(),
		MaxAttempts:    cfg.OTPMaxAttempts,
	})

	if cfg.TrustServiceURL == "" {
		log.Fatal("server: TRUST_SERVICE_URL is required")
	}
	var tsa trust.Timestamper
	if cfg.TSAURL != "" {
		tsa = rfc3161.NewClient(cfg.TSAURL, cfg.TSAPolicyOID, cfg.FinalizeTimeout())
	}
	finalizer := trust.NewService(trust.NewHTTPSealer(cfg.TrustServiceURL, cfg.TrustServiceAPIKey, cfg.FinalizeTimeout()), tsa)

	kafkaPub := publisher.NewKafkaPublisher(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	defer kafkaPub.Close()
	var sinks []publisher.Sink
	if kafkaPub != nil {
		sinks = append(sinks, kafkaPub)
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, publisher.NewOTelLogSink(providers.LoggerProvider))
	}
	exporter := publisher.NewAsync(sinks...)
	recorder := audit.NewRecorder(st.audit, exporter)

	var locker lock.Locker = lock.NewMemoryLocker()
	var healthChecks []healthhandler.Check
	if cfg.RedisURL != "" {
		rc, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		locker = lock.NewRedisLocker(rc, "esign:session:", cfg.LockTTL())
		healthChecks = append(healthChecks, healthhandler.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}})
	} else if sqlDB != nil {
		log.Println("server: REDIS_URL not set, session locks are process-local")
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	eng, err := service.NewEngine(service.Deps{
		Sessions:  st.sessions,
		Envelopes: st.envelopes,
		Parties:   st.parties,
		Types:     types,
		Consents:  consent.NewLedger(types),
		Identity:  verifiers(cfg, st.parties, hasher),
		Policy:    policy,
		OTP:       otpSvc,
		Audit:     recorder,
		Trust:     finalizer,
		Tx:        st.tx,
		Locker:    locker,
	})
	if err != nil {
		log.Fatalf("signing: %v", err)
	}
	eng.WithFinalizeTimeout(cfg.FinalizeTimeout())

	deps := server.Deps{
		Signing: eng,
		Tokens:  tokens,
		Health:  healthhandler.NewServer(st.pinger, policy, healthChecks...),
	}
	if devStore != nil {
		deps.DevOTPHandler = devotphandler.NewServer(devStore)
	}
	s := server.NewServer(deps)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	s.GracefulStop()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), publisher.ShutdownDrainDuration)
	if err := exporter.Close(drainCtx); err != nil {
		log.Printf("audit: drain publisher: %v", err)
	}
	cancelDrain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: %v", err)
	}
	log.Println("gRPC server stopped")
}
