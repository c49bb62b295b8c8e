package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/joho/godotenv"

	"notex/auth"
	"notex/config"
	"notex/db"
	"notex/handlers"
	"notex/i18n"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file loaded, relying on the environment")
	}

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	bundle, err := i18n.Load("i18n")
	if err != nil {
		log.Fatalf("Error loading translations: %v", err)
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer store.Close()

	sessions := auth.NewSessions(cfg.SessionKey, cfg.ListenPort != 8080)

	app := handlers.New(store, sessions, bundle, cfg)

	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Register application handlers
	app.Register(mux)

	// CSRF protection for the form surface. The JSON API authenticates by
	// opaque token and is exempt, as is the captcha image server.
	csrfMiddleware := csrf.Protect(
		[]byte(cfg.SessionKey),
		csrf.Secure(cfg.ListenPort != 8080),
		csrf.Path("/"),
	)
	protected := csrfMiddleware(mux)
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/captcha/") {
			mux.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})

	addr := fmt.Sprintf("%s:%d", cfg.ListenIP, cfg.ListenPort)
	log.Printf("Server starting on %s (%s)", addr, cfg.AppName)

	handler := handlers.SecurityHeadersMiddleware(handlers.CORSMiddleware(root))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
