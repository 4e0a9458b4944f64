package server

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/transport"
)

const (
	// DefaultBodyLimit caps request bodies at 2 MiB.
	DefaultBodyLimit = 2 * 1024 * 1024
	// DefaultMessageTTL is how long undelivered messages are kept.
	DefaultMessageTTL = 7 * 24 * time.Hour
	sweepInterval     = time.Hour
)

// Server owns the HTTP listener and the expiry sweeper.
type Server struct {
	app        *App
	httpServer *http.Server
	messageTTL time.Duration
}

// NewServer builds a server from the environment. A .env file is loaded
// when present; real environment variables win.
func NewServer(port string) (*Server, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		return nil, fmt.Errorf("HOSTNAME is required")
	}
	serverKey, err := crypto.KeyFromSeedHex(os.Getenv("SERVER_KEY"))
	if err != nil {
		return nil, fmt.Errorf("SERVER_KEY: %w", err)
	}
	adminName := os.Getenv("ADMIN_NAME")
	if adminName == "" {
		return nil, fmt.Errorf("ADMIN_NAME is required")
	}
	adminKey, err := crypto.ParsePublicKeyHex(os.Getenv("ADMIN_PUBLIC_KEY"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_PUBLIC_KEY: %w", err)
	}

	bodyLimit := int64(DefaultBodyLimit)
	if v := os.Getenv("LIMIT_SIZE"); v != "" {
		bodyLimit, err = strconv.ParseInt(v, 10, 64)
		if err != nil || bodyLimit <= 0 {
			return nil, fmt.Errorf("LIMIT_SIZE must be a positive integer")
		}
	}

	messageTTL := DefaultMessageTTL
	if v := os.Getenv("MESSAGE_TTL_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("MESSAGE_TTL_HOURS must be a positive integer")
		}
		messageTTL = time.Duration(hours) * time.Hour
	}

	var blobs BlobStore
	if os.Getenv("BLOB_STORE") == "s3" {
		bucket := os.Getenv("AWS_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("AWS_BUCKET is required with BLOB_STORE=s3")
		}
		blobs, err = NewS3BlobStore(context.Background(), bucket, os.Getenv("AWS_REGION"))
		if err != nil {
			return nil, fmt.Errorf("s3 blob store: %w", err)
		}
	}

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		dbURL = "server_data"
	}
	store, err := NewStore(dbURL, blobs)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	trust := NewTrustGateway(hostname)
	app := &App{
		Hostname:       hostname,
		ServerKey:      serverKey,
		AdminName:      adminName,
		AdminPublicKey: adminKey,
		BodyLimit:      bodyLimit,
		Store:          store,
		Trust:          trust,
		Exchange:       NewExchange(hostname, serverKey, store, trust),
		Guard:          &Guard{LocalHost: hostname, Store: store, Trust: trust},
	}

	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = transport.DefaultServerPort
	}
	if port[0] != ':' {
		port = ":" + port
	}

	return &Server{
		app: app,
		httpServer: &http.Server{
			Addr:         port,
			Handler:      NewHandler(app),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		messageTTL: messageTTL,
	}, nil
}

// Start serves until the listener fails and sweeps expired messages in the
// background.
func (s *Server) Start() error {
	go s.sweepLoop()

	slog.Info("server listening",
		"addr", s.httpServer.Addr,
		"hostname", s.app.Hostname,
		"server_key", fmt.Sprintf("%x", s.app.ServerKey.Public().(ed25519.PublicKey)))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.app.Store.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := s.app.Store.DeleteExpired(ctx, s.messageTTL); err != nil {
			slog.Error("expiry sweep failed", "error", err)
		}
		cancel()
	}
}
