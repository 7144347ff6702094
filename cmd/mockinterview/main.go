package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/mockinterview/internal/handler"
	"github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/interview"
	"github.com/pavelanni/mockinterview/internal/jobs"
	"github.com/pavelanni/mockinterview/internal/llm"
	"github.com/pavelanni/mockinterview/internal/llm/prompts"
	"github.com/pavelanni/mockinterview/internal/lock"
	"github.com/pavelanni/mockinterview/internal/metrics"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/store"
	"github.com/pavelanni/mockinterview/internal/store/mongostore"
)

// backend is implemented by both the SQLite and the MongoDB store.
type backend interface {
	interview.Repository
	handler.Store
	UserCount(ctx context.Context) (int, error)
	ExportCompleted(ctx context.Context) ([]model.CandidateResult, error)
	Close() error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mockinterview",
		Short: "Mock interview scoring and feedback service",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), reconcileCmd(), useraddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mockinterview --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("store", "sqlite", "Document store backend (sqlite, mongo)")
	f.String("db", "mockinterview.db", "SQLite database path")
	f.String("mongo-uri", "", "MongoDB connection URI")
	f.String("mongo-db", "mockinterview", "MongoDB database name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("redis-url", "", "Redis URL for the cross-replica session lock (empty = in-process lock)")
	f.String("llm-provider", "openai", "Evaluation provider (openai, gemini, none)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "llama3.2", "OpenAI-compatible model name")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", "gemini-2.5-flash", "Gemini model name")
	f.String("prompt-variant", string(prompts.Standard), "Evaluation prompt variant (strict, standard, lenient)")
	f.Duration("oracle-timeout", llm.DefaultTimeout, "Upper bound on a single evaluation call")
	f.StringP("lang", "l", "en", "Default feedback language (en, ru)")
	f.String("jwt-secret", "", "HMAC secret for bearer tokens (or set MOCKINTERVIEW_JWT_SECRET)")
	f.Duration("token-ttl", 24*time.Hour, "Bearer token lifetime")
	f.String("admin-password", "", "Initial admin password (or set MOCKINTERVIEW_ADMIN_PASSWORD)")
	f.String("reconcile-schedule", jobs.DefaultSchedule, "Cron schedule for interview reconciliation")
	f.StringSlice("cors-origins", []string{"http://localhost:5173"}, "Allowed CORS origins")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed interviews as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair interviews whose session completed but whose record was not updated",
		RunE:  runReconcile,
	}
	addStoreFlags(cmd)
	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account",
		RunE:  runUseradd,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.String("username", "", "Login name (required)")
	f.String("password", "", "Password (required)")
	f.String("display-name", "", "Name printed on certificates")
	f.String("role", string(model.UserRoleCandidate), "Role (candidate, admin)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKINTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mockinterview")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mockinterview")
	v.AddConfigPath("/etc/mockinterview")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openBackend(ctx context.Context, v *viper.Viper) (backend, error) {
	switch kind := strings.ToLower(v.GetString("store")); kind {
	case "", "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		slog.Info("using sqlite store", "path", v.GetString("db"))
		return db, nil
	case "mongo", "mongodb":
		db, err := mongostore.Connect(ctx, v.GetString("mongo-uri"), v.GetString("mongo-db"))
		if err != nil {
			return nil, err
		}
		slog.Info("using mongo store", "database", v.GetString("mongo-db"))
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite or mongo)", kind)
	}
}

// newEvaluator builds the configured provider. A nil Evaluator makes every
// evaluation use the local fallback.
func newEvaluator(ctx context.Context, v *viper.Viper, variant string) (llm.Evaluator, error) {
	switch provider := strings.ToLower(v.GetString("llm-provider")); provider {
	case "openai":
		c, err := llm.NewOpenAI(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.Ping(pctx); err != nil {
			slog.Warn("LLM health check failed, evaluations will fall back until it recovers",
				"url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		return c, nil
	case "gemini":
		c, err := llm.NewGemini(ctx, v.GetString("gemini-key"), v.GetString("gemini-model"), variant)
		if err != nil {
			return nil, err
		}
		slog.Info("using Gemini evaluator", "model", v.GetString("gemini-model"))
		return c, nil
	case "none":
		slog.Warn("no evaluation provider configured, all answers use the fallback score")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want openai, gemini or none)", provider)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	catalog, err := i18n.New(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.Standard)
	}
	eval, err := newEvaluator(ctx, v, promptVariant)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}

	m := metrics.New()
	oracle := llm.NewAdapter(eval, v.GetDuration("oracle-timeout"))
	oracle.OnOutcome = m.ObserveOracle

	var locker lock.Locker = lock.NewLocal()
	if url := v.GetString("redis-url"); url != "" {
		rl, err := lock.NewRedisFromURL(ctx, url, 0)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rl.Close()
		locker = rl
		slog.Info("using redis session lock")
	}

	svc := interview.New(interview.Config{
		Repo:    db,
		Oracle:  oracle,
		Locker:  locker,
		Catalog: catalog,
		Metrics: m,
	})

	cfg := model.Config{
		PromptVariant: promptVariant,
		OracleTimeout: v.GetDuration("oracle-timeout"),
		JWTSecret:     v.GetString("jwt-secret"),
		TokenTTL:      v.GetDuration("token-ttl"),
		CORSOrigins:   v.GetStringSlice("cors-origins"),
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or MOCKINTERVIEW_JWT_SECRET env var")
	}
	h, err := handler.New(svc, db, m, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(catalog.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	job := jobs.NewReconcileJob(svc, v.GetString("reconcile-schedule"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", addr,
			"store", v.GetString("store"),
			"llm_provider", v.GetString("llm-provider"),
			"prompt_variant", promptVariant,
			"oracle_timeout", cfg.OracleTimeout,
			"lang", lang,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return job.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportCompleted(ctx)
	if err != nil {
		return fmt.Errorf("export interviews: %w", err)
	}

	export := model.InterviewExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported interviews", "count", len(results), "output", outPath)
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := interview.New(interview.Config{Repo: db})
	n, err := jobs.NewReconcileJob(svc, "").RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "repaired %d interview(s)\n", n)
	return nil
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	role := model.UserRole(v.GetString("role"))
	if role != model.UserRoleCandidate && role != model.UserRoleAdmin {
		return fmt.Errorf("unknown role %q (want candidate or admin)", role)
	}

	db, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(v.GetString("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = v.GetString("username")
	}
	u, err := db.CreateUser(ctx, model.User{
		Username:     v.GetString("username"),
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Username, u.ID)
	return nil
}

func seedAdmin(ctx context.Context, db backend, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or MOCKINTERVIEW_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
