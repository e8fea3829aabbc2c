package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"viba/internal/middleware"
)

// mintoken signs a development bearer token so the API can be exercised
// without a full identity provider in front of it.
func main() {
	var (
		subFlag  string
		planFlag string
		ttlFlag  time.Duration
	)
	flag.StringVar(&subFlag, "sub", "", "subject (user id) to embed in the token")
	flag.StringVar(&planFlag, "plan", "free", "plan claim to embed")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	sub := strings.TrimSpace(subFlag)
	if sub == "" {
		exitWithError(errors.New("-sub is required"))
	}

	_ = godotenv.Load()
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		exitWithError(errors.New("JWT_SECRET is required"))
	}

	token, err := middleware.SignJWT(secret, middleware.TokenClaims{
		Sub:    sub,
		Plan:   strings.TrimSpace(planFlag),
		Exp:    time.Now().Add(ttlFlag).Unix(),
		Issuer: "viba",
	})
	if err != nil {
		exitWithError(fmt.Errorf("sign token: %w", err))
	}
	fmt.Println(token)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
