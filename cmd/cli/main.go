package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/synapse/internal/config"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

func main() {
	_ = godotenv.Load()
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println("==== Synapse CLI ====")
		fmt.Println("1) Health check API")
		fmt.Println("2) Issue tokens")
		fmt.Println("3) List tokens")
		fmt.Println("4) Reset token binding")
		fmt.Println("5) Revoke token")
		fmt.Println("6) Import token sheet (CSV)")
		fmt.Println("7) Hash admin key")
		fmt.Println("8) Exit")
		choice := prompt(reader, "Select option: ")
		switch choice {
		case "1":
			doHealthCheck()
		case "2":
			withGate(func(ctx context.Context, g *gate.Service, _ tokenstore.Store) { doIssue(ctx, g, reader) })
		case "3":
			withGate(func(ctx context.Context, g *gate.Service, _ tokenstore.Store) { doList(ctx, g) })
		case "4":
			withGate(func(ctx context.Context, g *gate.Service, _ tokenstore.Store) { doReset(ctx, g, reader) })
		case "5":
			withGate(func(ctx context.Context, g *gate.Service, _ tokenstore.Store) { doRevoke(ctx, g, reader) })
		case "6":
			withGate(func(ctx context.Context, _ *gate.Service, s tokenstore.Store) { doImport(ctx, s, reader) })
		case "7":
			doHashKey(reader)
		case "8":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Invalid option")
		}
		fmt.Println()
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func doHealthCheck() {
	base := os.Getenv("BASE_URL")
	if base == "" {
		base = "http://127.0.0.1:8080"
	}
	url := strings.TrimRight(base, "/") + "/api/health"
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("Health: ERROR:", err)
		return
	}
	defer resp.Body.Close()
	fmt.Println("Health status:", resp.Status)
}

// withGate opens the configured token store for one command.
func withGate(fn func(ctx context.Context, g *gate.Service, s tokenstore.Store)) {
	cfg, err := config.Load()
	if err != nil {
		log.Println("Config error:", err)
		return
	}
	if cfg.Store.Driver == config.DriverMemory {
		fmt.Println("TOKEN_STORE=memory lives inside the server process; use the admin API instead")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	store, err := tokenstore.Open(ctx, cfg.Store)
	if err != nil {
		log.Println("Token store error:", err)
		return
	}
	defer store.Close()
	fn(ctx, gate.New(store, nil, nil), store)
}

func doIssue(ctx context.Context, g *gate.Service, reader *bufio.Reader) {
	switch prompt(reader, "1) Generate random tokens  2) Issue a specific token [1]: ") {
	case "", "1":
		n, err := parseCount(prompt(reader, "How many tokens [1]: "))
		if err != nil {
			fmt.Println("Issue: error:", err)
			return
		}
		tokens, err := g.IssueGenerated(ctx, n)
		for _, t := range tokens {
			fmt.Println(t)
		}
		if err != nil {
			fmt.Println("Issue: error:", err)
			return
		}
		fmt.Printf("Issued %d tokens\n", len(tokens))
	case "2":
		token, err := parseLiteralToken(prompt(reader, "Token: "))
		if err != nil {
			fmt.Println("Issue: error:", err)
			return
		}
		if err := g.Issue(ctx, token); err != nil {
			fmt.Println("Issue: error:", err)
			return
		}
		fmt.Println("Issued", token)
	default:
		fmt.Println("Invalid option")
	}
}

// parseCount reads how many tokens to generate; blank means one.
func parseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validation.FieldError{Field: "count", Value: raw, Message: "must be a number"}
	}
	if err := validation.ValidateIssueCount(n); err != nil {
		return 0, err
	}
	return n, nil
}

func parseLiteralToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", gate.ErrEmptyToken
	}
	if err := validation.ValidateToken(token); err != nil {
		return "", err
	}
	return token, nil
}

func doList(ctx context.Context, g *gate.Service) {
	records, err := g.Tokens(ctx)
	if err != nil {
		fmt.Println("List: error:", err)
		return
	}
	bound := 0
	for _, rec := range records {
		device, since := "-", ""
		if rec.Bound() {
			bound++
			device = rec.DeviceID
			if !rec.RegisteredAt.IsZero() {
				since = rec.RegisteredAt.Format(time.RFC3339)
			}
		}
		fmt.Printf("%-16s %-40s %s\n", rec.Token, device, since)
	}
	fmt.Printf("%d tokens, %d bound\n", len(records), bound)
}

func doReset(ctx context.Context, g *gate.Service, reader *bufio.Reader) {
	token := prompt(reader, "Token to reset: ")
	if err := g.Reset(ctx, token); err != nil {
		fmt.Println("Reset: error:", err)
		return
	}
	fmt.Println("Binding cleared; the next device to use", token, "will be bound")
}

func doRevoke(ctx context.Context, g *gate.Service, reader *bufio.Reader) {
	token := prompt(reader, "Token to revoke: ")
	if err := g.Revoke(ctx, token); err != nil {
		fmt.Println("Revoke: error:", err)
		return
	}
	fmt.Println("Revoked", token)
}

func doImport(ctx context.Context, store tokenstore.Store, reader *bufio.Reader) {
	path := prompt(reader, "CSV path (Token,DeviceID columns): ")
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("Import: error:", err)
		return
	}
	defer f.Close()
	summary, err := tokenstore.ImportCSV(ctx, store, f)
	if err != nil {
		fmt.Println("Import: error:", err)
		return
	}
	fmt.Printf("Import OK: %d issued, %d bound, %d skipped\n", summary.Issued, summary.Bound, summary.Skipped)
}

func doHashKey(reader *bufio.Reader) {
	key := prompt(reader, "Admin key: ")
	if len(key) < 12 {
		fmt.Println("Admin key must be at least 12 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		fmt.Println("Hash: bcrypt error:", err)
		return
	}
	fmt.Printf("ADMIN_KEY_HASH='%s'\n", hash)
}
