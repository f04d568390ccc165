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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/examdesk/internal/authoring"
	"github.com/pavelanni/examdesk/internal/handler"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/llm"
	"github.com/pavelanni/examdesk/internal/metrics"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examdesk",
		Short: "Timed online exams with automatic grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd(), createUserCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "examdesk.db", "SQLite path or PostgreSQL connection URL")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to this file with rotation instead of stderr")
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
	f.String("admin-password", "", "Initial admin password (or set EXAMDESK_ADMIN_PASSWORD)")
	f.StringSlice("exams", nil, "Exam definition JSON files to import at startup (repeatable)")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("late-policy", string(model.LateAccept), "Submissions past the duration: accept (flag as late) or reject")
	f.Duration("late-grace", 30*time.Second, "Allowance on top of the exam duration")
	f.Int("login-rate", 10, "Login attempts per minute per client (0 disables)")
	f.String("cleanup-schedule", "@hourly", "Cron schedule for purging expired login sessions")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables feedback)")
	f.String("llm-key", "", "API key for the feedback model")
	f.String("llm-model", "llama3.2", "Feedback model name")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export graded results as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.Int64("exam-id", 0, "Only export this exam (0 = all exams)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exam definitions from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addStoreFlags(cmd)
	cmd.Flags().String("as", "admin", "Username of the admin who owns the imported exams")
	return cmd
}

func createUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE:  runCreateUser,
	}
	addStoreFlags(cmd)
	f := cmd.Flags()
	f.String("username", "", "Login name (required)")
	f.String("password", "", "Password (required)")
	f.String("full-name", "", "Display name")
	f.String("email", "", "Email address")
	f.String("role", string(model.UserRoleStudent), "Role (STUDENT, ADMIN)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func setupLogging(v *viper.Viper) {
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

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examdesk")
	v.AddConfigPath("/etc/examdesk")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore connects using --db-driver and --db. DATABASE_URL is used when
// neither was set explicitly.
func openStore(cmd *cobra.Command, v *viper.Viper) (*store.Store, error) {
	driver, dsn := v.GetString("db-driver"), v.GetString("db")
	explicit := cmd.Flags().Changed("db") || cmd.Flags().Changed("db-driver") || v.IsSet("db")
	if url := os.Getenv("DATABASE_URL"); url != "" && !explicit {
		dsn = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			driver = store.DriverPostgres
		}
	}
	db, err := store.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	slog.Debug("opened database", "driver", driver)
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	policy := model.LatePolicy(strings.ToLower(v.GetString("late-policy")))
	if !policy.Valid() {
		return fmt.Errorf("invalid late-policy %q: want accept or reject", policy)
	}

	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if paths := v.GetStringSlice("exams"); len(paths) > 0 {
		if err := importFiles(ctx, db, "admin", paths); err != nil {
			return fmt.Errorf("import exams: %w", err)
		}
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Leave fb as a nil interface when no model is configured.
	var fb handler.FeedbackGenerator
	if url := v.GetString("llm-url"); url != "" {
		fb = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		slog.Info("feedback model configured", "url", url, "model", v.GetString("llm-model"))
	}

	cfg := model.ServeConfig{
		Lang:          lang,
		SecureCookies: v.GetBool("secure-cookies"),
		LatePolicy:    policy,
		LateGrace:     v.GetDuration("late-grace"),
		LoginRate:     v.GetInt("login-rate"),
	}
	h := handler.New(db, fb, metrics.New(), cfg)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(v.GetString("cleanup-schedule"), func() {
		n, err := db.CleanupExpiredSessions(context.Background())
		if err != nil {
			slog.Error("session cleanup failed", "error", err)
			return
		}
		slog.Info("purged expired login sessions", "count", n)
	}); err != nil {
		return fmt.Errorf("invalid cleanup-schedule: %w", err)
	}
	c.Start()
	defer c.Stop()

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"late_policy", cfg.LatePolicy,
		"late_grace", cfg.LateGrace,
		"login_rate", cfg.LoginRate,
		"feedback", fb != nil,
	)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	examID := v.GetInt64("exam-id")
	results, err := db.ExportResults(cmd.Context(), examID)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	export := model.ResultsExport{
		GeneratedAt: time.Now().UTC(),
		ExamID:      examID,
		Results:     results,
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
	_, _ = fmt.Fprintln(w)
	slog.Info("exported results", "count", len(results), "output", outPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	return importFiles(cmd.Context(), db, v.GetString("as"), args)
}

// importFiles imports each exam file as the named admin. Files whose
// content was already imported under the same name are skipped.
func importFiles(ctx context.Context, db *store.Store, username string, paths []string) error {
	admin, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if admin == nil || admin.Role != model.UserRoleAdmin {
		return fmt.Errorf("%q is not an admin user", username)
	}

	svc := authoring.New(db)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := svc.Import(ctx, admin.ID, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if !res.Skipped {
			fmt.Fprintf(os.Stderr, "%s: imported %d exam(s)\n", path, len(res.Exams))
		}
	}
	return nil
}

func runCreateUser(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	role := model.UserRole(strings.ToUpper(v.GetString("role")))
	if !role.Valid() {
		return fmt.Errorf("invalid role %q: want STUDENT or ADMIN", role)
	}
	password := v.GetString("password")
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	id, err := db.CreateUser(cmd.Context(), model.User{
		Username:     v.GetString("username"),
		FullName:     v.GetString("full-name"),
		Email:        v.GetString("email"),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("created %s user %q (id %d)\n", role, v.GetString("username"), id)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMDESK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		FullName:     "Administrator",
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
