// Command adminctl creates the first administrator account directly in the
// database, for bootstrapping a fresh deployment where no admin exists yet to
// call the HTTP API.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {

	cfg := &config.Config{}
	cfg.LoadDefaults()

	dsn := flag.String("d", cfg.DatabaseDSN, "database DSN")
	username := flag.String("u", "", "admin username")
	email := flag.String("e", "", "admin email")
	flag.Parse()

	if *username == "" || *email == "" {
		flag.Usage()
		return fmt.Errorf("username and email are required")
	}
	cfg.DatabaseDSN = *dsn

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	us := services.NewUserService(db, rm, logger, cfg)

	user, err := us.Register(ctx, services.RegisterInput{
		Username: *username,
		Email:    *email,
		Password: string(password),
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Admin %q created (id %s)\n", user.Username, user.ID)
	return nil
}

// promptPassword reads the password twice without echo, falling back to plain
// reads when stdin is not a terminal (piped input).
func promptPassword() ([]byte, error) {

	readOnce := func(prompt string) ([]byte, error) {
		fmt.Print(prompt)
		defer fmt.Println()
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	password, err := readOnce("Enter password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := readOnce("Confirm password: ")
	if err != nil {
		common.WipeByteArray(password)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if string(password) != string(confirm) {
		common.WipeByteArray(password)
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}
