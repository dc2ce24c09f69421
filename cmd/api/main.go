package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"breakglass.org/internal/auth"
	"breakglass.org/internal/directory"
	"breakglass.org/internal/httpapi"
	"breakglass.org/internal/identity"
	"breakglass.org/internal/notify"
	"breakglass.org/internal/obs"
	"breakglass.org/internal/stream"
	"breakglass.org/internal/ticket"
	"breakglass.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Database is optional: without a DSN the service runs on in-memory
	// stores, which is enough for local development and the smoke test.
	var db *sql.DB
	if dsn := os.Getenv("BREAKGLASS_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var userStore directory.Store
	var ticketStore ticket.Store
	if db != nil {
		userStore = directory.NewPGStore(db)
		ticketStore = ticket.NewPGStore(db)
	} else {
		log.Println("no BREAKGLASS_PG_DSN set, using in-memory stores")
		userStore = directory.NewInMemory()
		ticketStore = ticket.NewInMemory()
	}

	secret := os.Getenv("BREAKGLASS_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("BREAKGLASS_TOKEN_SECRET is required")
	}
	codec, err := token.New(secret, envDuration("BREAKGLASS_TOKEN_TTL", time.Hour))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var idp identity.Verifier = identity.Disabled{}
	if jwksURL := os.Getenv("BREAKGLASS_IDP_JWKS_URL"); jwksURL != "" {
		v, err := identity.NewJWKSVerifier(rootCtx, identity.Config{
			JWKSURL:  jwksURL,
			Issuer:   os.Getenv("BREAKGLASS_IDP_ISSUER"),
			Audience: os.Getenv("BREAKGLASS_IDP_AUDIENCE"),
		})
		if err != nil {
			log.Fatalf("identity verifier: %v", err)
		}
		idp = v
	} else {
		log.Println("no BREAKGLASS_IDP_JWKS_URL set, identity provider disabled")
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if smtpAddr := os.Getenv("BREAKGLASS_SMTP_ADDR"); smtpAddr != "" {
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Addr:     smtpAddr,
			From:     os.Getenv("BREAKGLASS_SMTP_FROM"),
			Username: os.Getenv("BREAKGLASS_SMTP_USERNAME"),
			Password: os.Getenv("BREAKGLASS_SMTP_PASSWORD"),
		})
		if err != nil {
			log.Fatalf("smtp notifier: %v", err)
		}
		notifier = n
	}

	users := directory.NewService(userStore)
	events := stream.New()

	tickets := ticket.NewService(ticketStore,
		ticket.WithCloseHook(func(ctx context.Context, t *ticket.Ticket) {
			events.Publish(stream.Event{
				Event:         "ticket.expired_closed",
				TicketID:      t.TicketID,
				UserID:        t.UserID,
				Status:        string(t.Status),
				EmergencyType: t.EmergencyType,
				Timestamp:     time.Now().UTC(),
			})
			user, err := users.Get(ctx, t.UserID)
			if err != nil || user.Email == "" {
				return
			}
			notify.Deliver(ctx, notifier, notify.Message{
				RecipientEmail: user.Email,
				Subject:        "Emergency access ticket expired",
				Report: map[string]string{
					"ticket_id": t.TicketID,
					"status":    string(t.Status),
				},
			})
		}))

	sweeper := ticket.NewSweeper(tickets, envDuration("BREAKGLASS_SWEEP_INTERVAL", ticket.DefaultSweepInterval))
	go sweeper.Run(rootCtx)

	gateway := auth.NewGateway(idp, codec)

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Gateway:    gateway,
		Identity:   idp,
		Codec:      codec,
		Users:      users,
		Tickets:    tickets,
		Stream:     events,
		Notifier:   notifier,
	})

	srv := &http.Server{
		Addr:              envString("BREAKGLASS_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting breakglass-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("ignoring invalid %s=%q", key, v)
	return fallback
}
