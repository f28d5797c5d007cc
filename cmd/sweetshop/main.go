package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/erazemk/sweetshop/internal/api"
	"github.com/erazemk/sweetshop/internal/auth"
	"github.com/erazemk/sweetshop/internal/config"
	"github.com/erazemk/sweetshop/internal/db"
	"github.com/erazemk/sweetshop/internal/imaging"
	"github.com/erazemk/sweetshop/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

// options holds the command-line settings that are not part of Config.
type options struct {
	adminEmail string
}

// parseFlags applies command-line flags on top of cfg and validates the
// result. It returns flag.ErrHelp when -h was given.
func parseFlags(cfg *config.Config, args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("sweetshop", flag.ContinueOnError)

	fs.StringVar(&cfg.Database.SQLitePath, "db", cfg.Database.SQLitePath, "")
	fs.StringVar(&cfg.Database.SQLitePath, "d", cfg.Database.SQLitePath, "")

	fs.StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "")
	fs.StringVar(&cfg.Server.Addr, "a", cfg.Server.Addr, "")

	fs.StringVar(&opts.adminEmail, "admin", "", "")
	fs.StringVar(&opts.adminEmail, "u", "", "")

	fs.StringVar(&cfg.Log.File, "log", cfg.Log.File, "")
	fs.StringVar(&cfg.Log.File, "l", cfg.Log.File, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: sweetshop [flags]

Flags:
  -d, -db <path>          SQLite database path (default: sweetshop.sqlite3)
      -driver <name>      database driver: sqlite or postgres (default: sqlite)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -admin <email>      create this admin account if it does not exist
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Every flag can also be set through SWEETSHOP_* environment variables or a
.env file; flags take precedence.
`)
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if fs.NArg() > 0 {
		fs.Usage()
		return opts, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	// Flags may have changed the driver, so check again.
	if err := cfg.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	opts, err := parseFlags(cfg, os.Args[1:])
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, opts.adminEmail)
	if err != nil {
		slog.Error("sweetshop stopped", "error", err)
	}
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, adminEmail string) error {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.Source())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}

	slog.Info("database ready", "driver", cfg.Database.Driver)

	ctx := context.Background()

	if adminEmail != "" {
		password, err := bootstrapAdmin(ctx, database, adminEmail)
		if err != nil {
			return fmt.Errorf("creating admin account: %w", err)
		}
		if password != "" {
			printAdminCredentials(adminEmail, password)
		}
	}

	// Load JWT secret from database (auto-generated on first run) unless
	// one is configured.
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = store.GetJWTSecret(ctx, database)
		if err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}
	}

	var revoker auth.Revoker = auth.NewSQLRevoker(database)
	if cfg.Redis.URL != "" {
		rr, err := auth.NewRedisRevoker(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rr.Close()
		revoker = rr
		slog.Info("token revocations kept in redis")
	}

	done := make(chan struct{})
	defer close(done)

	router := api.NewRouter(database, api.Options{
		JWTSecret:   jwtSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		Revoker:     revoker,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   rate.Limit(cfg.Auth.RateLimit),
		RateBurst:   cfg.Auth.RateBurst,
		Images: imaging.Options{
			MaxBytes:     cfg.Images.MaxBytes,
			MaxDimension: cfg.Images.MaxDimension,
		},
		Done: done,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// bootstrapAdmin creates an admin account for email with a generated
// password. It returns the password, or "" when the account already exists.
func bootstrapAdmin(ctx context.Context, database *sqlx.DB, email string) (string, error) {
	existing, err := store.GetUserByEmail(ctx, database, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		slog.Info("admin account already exists", "email", email)
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	err = db.InTx(ctx, database, func(tx *sqlx.Tx) error {
		user, err := store.CreateUser(ctx, tx, email, "Admin", string(hash))
		if err != nil {
			return err
		}
		_, err = store.SetAdmin(ctx, tx, user.ID, true)
		return err
	})
	if err != nil {
		return "", err
	}
	return password, nil
}

// printAdminCredentials prints the generated admin account to stdout.
func printAdminCredentials(email, password string) {
	fmt.Println("Admin account created:")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println()
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
