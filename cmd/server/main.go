package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/gophupload/internal/flagx"
	"github.com/dmitrijs2005/gophupload/internal/server"
	"github.com/dmitrijs2005/gophupload/internal/server/auth"
	"github.com/dmitrijs2005/gophupload/internal/server/config"
	"github.com/joho/godotenv"
)

// issueTokenSubject returns the value of -issue-token, if given.
func issueTokenSubject(args []string) string {
	var subject string
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.StringVar(&subject, "issue-token", "", "print a signed upload token for the subject and exit")
	_ = fs.Parse(flagx.FilterArgs(args, []string{"-issue-token", "--issue-token"}))
	return subject
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if subject := issueTokenSubject(os.Args[1:]); subject != "" {
		tok, err := auth.GenerateToken(subject, []byte(cfg.SecretKey), cfg.TokenValidity)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
