package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
	"moneta/internal/infrastructure/postgres"
	"moneta/internal/shared/auth"
	"moneta/internal/shared/config"
)

const usage = `Moneta Admin CLI - Management commands for the Moneta API

Usage:
  admin <command> [options]

Commands:
  seed-providers   Upsert a provider bank profile into the database
  list-providers   List all known provider banks
  validate         Probe provider token endpoints with stored credentials
  create-user      Create a user account
  set-link         Link a user to their identity at a provider bank

Examples:
  # Seed a provider with explicit credentials
  admin seed-providers --code=vbank --name="Virtual Bank" --base-url=https://vbank.open.bankingapi.ru --client-id=team24 --client-secret=secret

  # Validate every known provider
  admin validate

  # Validate one provider
  admin validate --code=vbank

  # Create a user
  admin create-user --email=dev@example.com --name="Dev User" --password=changeme

  # Link user 1 to vbank under the bank-side id team24-client-7
  admin set-link --user-id=1 --code=vbank --bank-user-id=team24-client-7`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "seed-providers":
		runSeedProviders(os.Args[2:])
	case "list-providers":
		runListProviders(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "create-user":
		runCreateUser(os.Args[2:])
	case "set-link":
		runSetLink(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// openDB loads configuration and connects to the database.
func openDB() (*config.Config, *postgres.DB) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	return cfg, db
}

func newRegistry(cfg *config.Config, db *postgres.DB) *provider.Registry {
	obClient := openbanking.NewClient(cfg.Banking.RequestTimeout)
	return provider.NewRegistry(postgres.NewProviderRepository(db), obClient, provider.Defaults{
		ClientID:           cfg.Banking.ClientID,
		ClientSecret:       cfg.Banking.ClientSecret,
		RequestingBank:     cfg.Banking.RequestingBank,
		RequestingBankName: cfg.Banking.RequestingBankName,
	})
}

func runSeedProviders(args []string) {
	fs := flag.NewFlagSet("seed-providers", flag.ExitOnError)

	code := fs.String("code", "", "Bank code (required)")
	name := fs.String("name", "", "Display name (required)")
	baseURL := fs.String("base-url", "", "Provider API base URL (required)")
	clientID := fs.String("client-id", "", "Client id at the provider (defaults to BANKING_CLIENT_ID)")
	clientSecret := fs.String("client-secret", "", "Client secret at the provider (defaults to BANKING_CLIENT_SECRET)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *code == "" || *name == "" || *baseURL == "" {
		fmt.Println("Error: --code, --name and --base-url are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, db := openDB()
	defer db.Close()

	if *clientID == "" {
		*clientID = cfg.Banking.ClientID
	}
	if *clientSecret == "" {
		*clientSecret = cfg.Banking.ClientSecret
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := postgres.NewProviderRepository(db)
	stored, err := repo.Upsert(ctx, &provider.Profile{
		BankCode:           *code,
		Name:               *name,
		BaseURL:            *baseURL,
		ClientID:           *clientID,
		ClientSecret:       *clientSecret,
		RequestingBank:     cfg.Banking.RequestingBank,
		RequestingBankName: cfg.Banking.RequestingBankName,
	})
	if err != nil {
		log.Fatalf("Failed to upsert provider: %v", err)
	}

	fmt.Printf("Provider %s (%s) stored, base URL %s\n", stored.BankCode, stored.Name, stored.BaseURL)
}

func runListProviders(args []string) {
	fs := flag.NewFlagSet("list-providers", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, db := openDB()
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profiles, err := newRegistry(cfg, db).List(ctx)
	if err != nil {
		log.Fatalf("Failed to list providers: %v", err)
	}

	for _, p := range profiles {
		state := "configured"
		if err := p.Usable(); err != nil {
			state = "unconfigured"
		}
		fmt.Printf("  %-10s %-20s %-45s %s\n", p.BankCode, p.Name, p.BaseURL, state)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)

	code := fs.String("code", "", "Bank code to validate (default: all known providers)")
	timeoutStr := fs.String("timeout", "2m", "Timeout for the operation (e.g., 30s, 2m)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg, db := openDB()
	defer db.Close()

	registry := newRegistry(cfg, db)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var codes []string
	if *code != "" {
		codes = []string{*code}
	} else {
		profiles, err := registry.List(ctx)
		if err != nil {
			log.Fatalf("Failed to list providers: %v", err)
		}
		for _, p := range profiles {
			codes = append(codes, p.BankCode)
		}
	}

	failed := 0
	for _, bankCode := range codes {
		result, err := registry.Validate(ctx, bankCode)
		if err != nil {
			log.Fatalf("Validation of %s failed: %v", bankCode, err)
		}
		if result.OK {
			fmt.Printf("  %-10s ok\n", bankCode)
		} else {
			failed++
			fmt.Printf("  %-10s FAILED (%s)\n", bankCode, result.Reason)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func runCreateUser(args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)

	email := fs.String("email", "", "Email address (required)")
	name := fs.String("name", "", "Display name (required)")
	password := fs.String("password", "", "Password (required)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *email == "" || *name == "" || *password == "" {
		fmt.Println("Error: --email, --name and --password are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	_, db := openDB()
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userRepo := postgres.NewUserRepository(db)

	existing, err := userRepo.GetByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("Failed to check existing user: %v", err)
	}
	if existing != nil {
		log.Fatalf("User with email %s already exists (id %d)", *email, existing.ID)
	}

	passwordHash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	created, err := userRepo.Create(ctx, user.CreateUserParams{
		Email:        *email,
		Name:         *name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("User %d created (%s)\n", created.ID, created.Email)
}

func runSetLink(args []string) {
	fs := flag.NewFlagSet("set-link", flag.ExitOnError)

	userID := fs.Int64("user-id", 0, "User ID (required)")
	code := fs.String("code", "", "Bank code (required)")
	bankUserID := fs.String("bank-user-id", "", "The user's client id at the bank (required)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userID == 0 || *code == "" || *bankUserID == "" {
		fmt.Println("Error: --user-id, --code and --bank-user-id are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, db := openDB()
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := newRegistry(cfg, db).Resolve(ctx, *code); err != nil {
		log.Fatalf("Unknown bank %s: %v", *code, err)
	}

	link, err := postgres.NewLinkRepository(db).Upsert(ctx, *userID, *code, *bankUserID)
	if err != nil {
		log.Fatalf("Failed to store link: %v", err)
	}

	fmt.Printf("User %d linked to %s as %s\n", link.UserID, link.BankCode, link.BankUserID)
}
