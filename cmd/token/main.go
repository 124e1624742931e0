package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"commerce-service/config"
	"commerce-service/internal/auth"
)

// usage: token -user 42 [-role ADMIN]
// Issues a bearer token signed with JWT_SECRET for operators and local testing.
func main() {
	cfg := config.Load()

	userID := flag.Int64("user", 0, "user id carried in the token")
	role := flag.String("role", auth.RoleCustomer, "CUSTOMER or ADMIN")
	flag.Parse()

	*role = strings.ToUpper(*role)
	if *role != auth.RoleCustomer && *role != auth.RoleAdmin {
		log.Fatalf("Unknown role %q", *role)
	}

	token, err := auth.MintToken(cfg.Auth, time.Now(), *userID, *role)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Println(token)
}
