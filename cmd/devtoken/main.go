// Command devtoken mints a bearer token for local testing against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"placement/internal/auth"
	"placement/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sub := flag.String("sub", "", "subject (admin id or student user id)")
	role := flag.String("role", auth.RoleAdmin, "ADMIN or STUDENT")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime (defaults to ACCESS_TTL)")
	flag.Parse()

	if cfg.Production() {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with APP_ENV=production")
		os.Exit(1)
	}
	if *sub == "" || (*role != auth.RoleAdmin && *role != auth.RoleStudent) {
		flag.Usage()
		os.Exit(2)
	}
	tok, exp, err := auth.Issue(*sub, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
