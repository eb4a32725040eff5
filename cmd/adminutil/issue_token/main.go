package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/middleware"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// Mints a bearer token for support staff. Users sign in through the auth
// service; this only exists for operators who need admin routes.
func main() {
	userID := flag.String("user", "", "id of the operator the token is issued to")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", middleware.RoleAdmin, "role claim (admin|user)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -user ops-1 -email ops@example.com")
	}
	if *role != middleware.RoleAdmin && *role != middleware.RoleCustomer {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	token, err := utils.IssueToken(cfg.JWTSecret, *userID, *role, *email, *ttl)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
