// Command mktoken prints a signed token for a player or admin, using the
// same JWT_SECRET the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coder1568/one9wordchain/internal/auth"
	"github.com/joho/godotenv"
)

func main() {
	user := flag.String("user", "", "user id (required)")
	name := flag.String("name", "", "display name")
	admin := flag.Bool("admin", false, "grant admin commands")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime, 0 for none")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... mktoken -user ID [-name NAME] [-admin] [-ttl 24h]")
		os.Exit(2)
	}
	if *name == "" {
		*name = *user
	}

	tok, err := auth.NewIssuer(secret, *ttl).Issue(auth.Identity{UserID: *user, Name: *name, Admin: *admin})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
