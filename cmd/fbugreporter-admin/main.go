// Command fbugreporter-admin manages operator accounts directly against
// the server's sqlite database, so a freshly deployed server has a way to
// create its first operator without a GUI. Grounded on the same flag-CLI
// shape as cmd/fbugreporter-server (and, transitively, the teacher's
// cmd/flowersec-tunnel/main.go).
package main

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base32"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fbugreporter/server/config"
	"github.com/fbugreporter/server/store/sqlite"
	"github.com/fbugreporter/server/totp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "usage: fbugreporter-admin <useradd|userrm> <username> [--admin] [--config path]")
		return 2
	}

	subcommand, username := args[0], args[1]
	fs := flag.NewFlagSet("fbugreporter-admin "+subcommand, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "path to the server's YAML configuration file")
	isAdmin := fs.Bool("admin", false, "grant this account admin privileges (useradd only)")
	if err := fs.Parse(args[2:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	db, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer db.Close()

	switch subcommand {
	case "useradd":
		return useradd(db, username, *isAdmin, stdout, stderr)
	case "userrm":
		return userrm(db, username, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", subcommand)
		return 2
	}
}

type accountStore interface {
	AddUser(username string, isAdmin bool, passwordHash, salt []byte, otpSecret string) error
	RemoveUser(username string) (bool, error)
}

func useradd(db accountStore, username string, isAdmin bool, stdout, stderr io.Writer) int {
	plaintext, err := randomPassword()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	salt, err := randomSalt()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	otpSecret, err := totp.GenerateSecret()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	inner := sha512.Sum512([]byte(plaintext))
	outer := sha512.New()
	outer.Write(salt)
	outer.Write(inner[:])
	storedHash := outer.Sum(nil)

	if err := db.AddUser(username, isAdmin, storedHash, salt, otpSecret); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "created operator account %q (admin=%v)\n", username, isAdmin)
	fmt.Fprintf(stdout, "temporary password: %s\n", plaintext)
	fmt.Fprintln(stdout, "the account must set a new password and complete OTP enrollment on first login")
	return 0
}

func userrm(db accountStore, username string, stdout, stderr io.Writer) int {
	found, err := db.RemoveUser(username)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if !found {
		fmt.Fprintf(stderr, "no such user %q\n", username)
		return 1
	}
	fmt.Fprintf(stdout, "removed operator account %q\n", username)
	return 0
}

func randomPassword() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
