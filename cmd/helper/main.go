package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func hashToken(token string, cost int) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		log.Fatalf("Failed to hash token: %v", err)
	}
	fmt.Printf("API_TOKEN_HASH=%s\n", hash)
}

func main() {
	var (
		token    *string = flag.String("token", "", "API token to hash (generated when empty)")
		cost     *int    = flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
		generate *bool   = flag.Bool("generate", false, "Generate a new random token and print it with its hash")
	)
	flag.Parse()

	switch {
	case *token != "":
		hashToken(*token, *cost)
	case *generate:
		t := uuid.NewString()
		fmt.Printf("DIALER_TOKEN=%s\n", t)
		hashToken(t, *cost)
	default:
		flag.Usage()
	}
}
