// Command adduser creates a dashboard account in the configured backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"cuzdan/internal/auth"
	"cuzdan/internal/cli"
	"cuzdan/internal/config"
	"cuzdan/internal/log"
	"cuzdan/internal/store"
)

func main() {
	cli.LoadEnvFile()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "email address of the new user")
	password := fs.String("password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(stderr, "adduser: -email is required")
		fs.Usage()
		return 2
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(stderr, "adduser:", err)
		return 1
	}
	logger := cli.SetupLogger(cfg, log.ComponentAuth, stderr)

	pw := *password
	if pw == "" {
		if pw, err = readPassword(stdin, stdout); err != nil {
			fmt.Fprintln(stderr, "adduser: read password:", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := addUser(ctx, cfg, logger, *email, pw, stdout); err != nil {
		fmt.Fprintln(stderr, "adduser:", err)
		return 1
	}
	return 0
}

func addUser(ctx context.Context, cfg *config.Config, logger *log.Logger, email, password string, stdout io.Writer) error {
	db, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db.Cleanup != nil {
		defer db.Cleanup()
	}

	u, err := auth.NewService(cfg.JWTSecret, cfg.TokenExpiry, db.Repository).Register(ctx, email, password)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("user %s already exists", email)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created user %s (%s)\n", u.Email, u.ID)
	return nil
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stdout, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stdout)
		return string(b), err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
