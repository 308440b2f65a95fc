// Package main provides CLI for tenant management.
// Usage: tenant create --name "Bar Pepe" --postcode 28013 [--timezone Europe/Madrid]
//        tenant list
//        tenant show <tenant-id>
//        tenant token <tenant-id> [--user <user-id>]
//        tenant migrate
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	_ "time/tzdata"

	"tpvcore/internal/core/tenant"
	"tpvcore/internal/domain/auth"
	"tpvcore/internal/infrastructure/storage/postgres"
	"tpvcore/internal/infrastructure/storage/postgres/ledger_repo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		createTenant(ctx)
	case "list":
		listTenants(ctx)
	case "show":
		showTenant(ctx)
	case "token":
		issueToken(ctx)
	case "migrate":
		migrate(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

const usage = `tpvcore Tenant Management CLI

Usage:
  tenant <command> [options]

Commands:
  create    Create a new tenant (runs migrations first)
  list      List all tenants
  show      Show one tenant with its counters
  token     Issue an API bearer token for a tenant
  migrate   Apply database migrations
  help      Show this help

Environment Variables:
  DATABASE_URL   Connection string (required)
  JWT_SECRET     Secret used to sign tokens (required for token)

Examples:
  tenant create --name "Bar Pepe" --postcode 28013 --timezone Europe/Madrid \
      --issuer-name "Bar Pepe SL" --issuer-tax-id B12345678 --prefix "%year%-%count%"
  tenant list
  tenant show <tenant-uuid>
  tenant token <tenant-uuid> --user cashier-1
`

// printUsage writes usage verbatim; it holds literal %year% and %count% placeholders.
func printUsage() {
	_, _ = os.Stdout.WriteString(usage)
}

// parseFlags reads "--key value" pairs after the subcommand; bare words are positional.
func parseFlags(args []string) (map[string]string, []string) {
	flags := make(map[string]string)
	var positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "--") {
			key := strings.TrimPrefix(args[i], "--")
			if i+1 < len(args) {
				flags[key] = args[i+1]
				i++
			} else {
				flags[key] = ""
			}
			continue
		}
		positional = append(positional, args[i])
	}
	return flags, positional
}

func fail(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func getPool(ctx context.Context) *postgres.Pool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fail("DATABASE_URL environment variable is required")
	}

	cfg := postgres.DefaultPoolConfig(dsn)
	cfg.MinConns = 0
	cfg.MaxConns = 2
	cfg.ApplicationName = "tpvcore-tenant-cli"
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		fail("connecting to database: %v", err)
	}
	return pool
}

func tenantRepo(pool *postgres.Pool) *ledger_repo.TenantRepo {
	txm := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	return ledger_repo.NewTenantRepo(txm, nil)
}

func migrate(ctx context.Context) {
	pool := getPool(ctx)
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		fail("%v", err)
	}
	fmt.Println("Migrations applied.")
}

func createTenant(ctx context.Context) {
	flags, _ := parseFlags(os.Args[2:])

	in := tenant.CreateTenantInput{
		Name:          flags["name"],
		InvoicePrefix: flags["prefix"],
		Timezone:      flags["timezone"],
		Postcode:      flags["postcode"],
		IssuerName:    flags["issuer-name"],
		IssuerTaxID:   flags["issuer-tax-id"],
		IssuerAddress: flags["issuer-address"],
	}
	if err := in.Validate(); err != nil {
		fmt.Println("Usage: tenant create --name <name> [--postcode <cp>] [--timezone <tz>] [--prefix <template>]")
		fail("%v", err)
	}
	if in.IssuerName == "" {
		in.IssuerName = in.Name
	}

	pool := getPool(ctx)
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		fail("%v", err)
	}

	t := &tenant.Tenant{
		Name:          in.Name,
		InvoicePrefix: in.InvoicePrefix,
		Timezone:      in.Timezone,
		Postcode:      in.Postcode,
		IssuerName:    in.IssuerName,
		IssuerTaxID:   in.IssuerTaxID,
		IssuerAddress: in.IssuerAddress,
	}
	if err := tenantRepo(pool).Create(ctx, t); err != nil {
		fail("creating tenant: %v", err)
	}

	fmt.Printf("Tenant created.\n  id:       %s\n  name:     %s\n  timezone: %s\n  prefix:   %s\n",
		t.ID, t.Name, t.Timezone, t.InvoicePrefix)
}

func listTenants(ctx context.Context) {
	pool := getPool(ctx)
	defer pool.Close()

	tenants, err := tenantRepo(pool).List(ctx)
	if err != nil {
		fail("listing tenants: %v", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIMEZONE\tPOSTCODE\tTICKETS\tFACTURAS\tRECTIFICATIVAS")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			t.ID, t.Name, t.Timezone, t.Postcode,
			t.LastTicketNumber, t.LastFacturaNumber, t.LastRectificativaNumber)
	}
	_ = w.Flush()
}

func showTenant(ctx context.Context) {
	_, args := parseFlags(os.Args[2:])
	if len(args) != 1 {
		fail("usage: tenant show <tenant-id>")
	}

	pool := getPool(ctx)
	defer pool.Close()

	t, err := tenantRepo(pool).GetByID(ctx, args[0])
	if err != nil {
		fail("%v", err)
	}

	fmt.Printf(`id:                  %s
name:                %s
invoice prefix:      %s
timezone:            %s
postcode:            %s
issuer:              %s (%s) %s
last ticket:         %d
last factura:        %d
last rectificativa:  %d
created:             %s
`, t.ID, t.Name, t.InvoicePrefix, t.Timezone, t.Postcode,
		t.IssuerName, t.IssuerTaxID, t.IssuerAddress,
		t.LastTicketNumber, t.LastFacturaNumber, t.LastRectificativaNumber,
		t.CreatedAt.Format("2006-01-02 15:04:05 MST"))
}

func issueToken(ctx context.Context) {
	flags, args := parseFlags(os.Args[2:])
	if len(args) != 1 {
		fail("usage: tenant token <tenant-id> [--user <user-id>]")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fail("JWT_SECRET environment variable is required")
	}

	pool := getPool(ctx)
	defer pool.Close()

	t, err := tenantRepo(pool).GetByID(ctx, args[0])
	if err != nil {
		fail("%v", err)
	}

	userID := flags["user"]
	if userID == "" {
		userID = "cli"
	}
	token, expiresAt, err := auth.NewJWTService(auth.DefaultJWTConfig(secret)).GenerateAccessToken(userID, t.ID, nil)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
}
