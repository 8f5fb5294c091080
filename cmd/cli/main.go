// Command cli administers a shop database: it creates login accounts and
// prints stored receipts. It reads the same SHOP_* settings as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/alextreichler/minishop/internal/checkout"
	"github.com/alextreichler/minishop/internal/config"
	"github.com/alextreichler/minishop/internal/logging"
	"github.com/alextreichler/minishop/internal/money"
	"github.com/alextreichler/minishop/internal/storage"
	"github.com/alextreichler/minishop/internal/storage/redisstore"
	"github.com/alextreichler/minishop/internal/store"
)

const usage = `usage:
  cli add-user -username NAME -password PASS
  cli receipt ORDER_ID`

var errUsage = errors.New(usage)

func main() {
	// Keep key warnings and the like out of command output.
	logging.Setup(logging.Options{Level: "error"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// The CLI may run before the server ever has.
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	switch args[0] {
	case "add-user":
		return addUser(ctx, db, args[1:], out)
	case "receipt":
		if len(args) != 2 {
			return errUsage
		}
		kv, closeKV, err := receiptStorage(cfg, db)
		if err != nil {
			return err
		}
		defer closeKV()
		return printReceipt(ctx, checkout.NewService(kv), args[1], out)
	default:
		return errUsage
	}
}

func addUser(ctx context.Context, db *store.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "login password")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("add-user: %w", err)
	}
	if *username == "" || *password == "" {
		return errors.New("add-user: -username and -password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := db.CreateUser(ctx, *username, string(hash)); err != nil {
		return fmt.Errorf("create user %q: %w", *username, err)
	}
	fmt.Fprintf(out, "User %q created.\n", *username)
	return nil
}

// receiptStorage opens the backend the server writes receipts to.
func receiptStorage(cfg *config.Config, db *store.Store) (storage.Store, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		return redisstore.New(client, redisstore.Options{}), func() { client.Close() }, nil
	case config.StorageMemory:
		return nil, nil, errors.New("receipt: the memory backend keeps nothing between runs")
	default:
		return db, func() {}, nil
	}
}

func printReceipt(ctx context.Context, svc *checkout.Service, orderID string, out io.Writer) error {
	r, err := svc.Lookup(ctx, orderID)
	if err != nil {
		return fmt.Errorf("receipt %s: %w", orderID, err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Order %s\t%s\t\n", r.ID, r.CreatedAt.Format("January 2, 2006 15:04 MST"))
	for _, line := range r.Items {
		fmt.Fprintf(tw, "%d x %s\t%s\t\n", line.Qty, line.Name, money.Format(line.LineTotal()))
	}
	fmt.Fprintf(tw, "Subtotal\t%s\t\n", money.Format(r.Subtotal))
	fmt.Fprintf(tw, "Tax (%s)\t%s\t\n", money.TaxRatePercent(), money.Format(r.Tax))
	fmt.Fprintf(tw, "Total\t%s\t\n", money.Format(r.Total))
	return tw.Flush()
}
