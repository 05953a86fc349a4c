// seed inserts development parties and fresh pending envelopes, and prints bearer tokens for
// the dev customer and agent. Parties are upserted, so re-running only adds envelopes.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"esign-workflow/internal/config"
	"esign-workflow/internal/db"
	envdomain "esign-workflow/internal/envelope/domain"
	envrepo "esign-workflow/internal/envelope/repository"
	"esign-workflow/internal/envelopetype"
	"esign-workflow/internal/platform/actor"
	partydomain "esign-workflow/internal/party/domain"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/security"
)

const (
	devCustomerID    = "dev-customer-001"
	devCustomerIDNo  = "9001015009087"
	devCompanyID     = "dev-company-001"
	devCompanyRegNo  = "2015/123456/07"
	devAgentID       = "dev-agent-001"
	devCustomerPhone = "+27820000001"
	devCustomerEmail = "customer@example.com"
	devAgentPhone    = "+27820000099"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	types, err := envelopetype.LoadFile(cfg.EnvelopeTypesFile)
	if err != nil {
		log.Fatalf("envelope types: %v", err)
	}

	ctx := context.Background()
	parties := partyrepo.NewPostgresRepository(conn)
	envelopes := envrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	now := time.Now().UTC()

	idHash, err := hasher.HashIDNumber(devCustomerIDNo)
	if err != nil {
		log.Fatalf("hash id number: %v", err)
	}
	for _, p := range []*partydomain.Party{
		{ID: devCustomerID, Kind: partydomain.KindPerson, DisplayName: "Dev Customer", Phone: devCustomerPhone,
			Email: devCustomerEmail, DateOfBirth: date(1990, time.January, 1), IDNumberHash: idHash, CreatedAt: now},
		{ID: devCompanyID, Kind: partydomain.KindCompany, DisplayName: "Dev Trading (Pty) Ltd", Email: devCustomerEmail,
			RegistrationNumber: devCompanyRegNo, RegistrationDate: date(2015, time.March, 2), CreatedAt: now},
		{ID: devAgentID, Kind: partydomain.KindAgent, DisplayName: "Dev Agent", Phone: devAgentPhone, CreatedAt: now},
	} {
		if err := parties.Upsert(ctx, p); err != nil {
			log.Fatalf("upsert party %s: %v", p.ID, err)
		}
	}

	for _, code := range types.Codes() {
		tc, err := types.Get(ctx, code)
		if err != nil {
			log.Fatalf("envelope type %s: %v", code, err)
		}
		customer := devCustomerID
		if !tc.AllowsSigningMethod("self_service") {
			customer = devCompanyID
		}
		env := &envdomain.Envelope{
			ID:         uuid.NewString(),
			TypeCode:   code,
			CustomerID: customer,
			Status:     envdomain.StatusPendingSignature,
			ExpiresAt:  now.AddDate(0, 0, tc.ValidityDays),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		for _, d := range tc.Documents {
			env.Documents = append(env.Documents, envdomain.DocumentSlot{
				ID: d.ID, Title: d.Title, DocumentRef: fmt.Sprintf("dev/%s/%s.pdf", env.ID, d.ID), Required: d.Required,
			})
		}
		if err := envelopes.Create(ctx, env); err != nil {
			log.Fatalf("create envelope: %v", err)
		}
		log.Printf("seed: envelope %s (%s) for %s", env.ID, code, customer)
	}

	if cfg.JWTPrivateKey == "" {
		log.Println("seed: JWT_PRIVATE_KEY not set, skipping dev tokens")
		return
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	tokens := security.NewTokenProvider(priv, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience, 24*time.Hour)
	for _, a := range []actor.Actor{
		{ID: devCustomerID, Role: actor.RoleCustomer},
		{ID: devCompanyID, Role: actor.RoleCustomer},
		{ID: devAgentID, Role: actor.RoleAgent},
	} {
		tok, exp, err := tokens.Issue(a)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Printf("%s (%s, expires %s):\n%s\n\n", a.ID, a.Role, exp.Format(time.RFC3339), tok)
	}
}
