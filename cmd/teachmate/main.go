package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/teachmate/internal/auth"
	"github.com/pavelanni/teachmate/internal/export"
	"github.com/pavelanni/teachmate/internal/handler"
	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/llm"
	"github.com/pavelanni/teachmate/internal/llm/prompts"
	"github.com/pavelanni/teachmate/internal/logstore"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/orchestrator"
	"github.com/pavelanni/teachmate/internal/retrieval"
	"github.com/pavelanni/teachmate/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teachmate",
		Short: "AI teaching assistant for course planning, assessment and reflection",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), feedbackCmd(), usersCmd(), hashPasswordCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `teachmate --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "teachmate.db", "SQLite database path")
	f.String("data-dir", "data", "Directory for the feedback log and user profiles")
	f.String("upload-dir", "uploads", "Directory for uploaded documents")
	f.Int64("max-upload-mb", 10, "Largest accepted document upload in MB")
	f.String("users-file", "", "YAML file with users to import on startup")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", llm.DefaultTimeout, "Timeout for a single LLM call")
	f.Float32("llm-temperature", 0.7, "LLM sampling temperature")
	f.Bool("llm-check", true, "Check the LLM endpoint on startup")
	f.String("prompts-dir", "", "Directory with <kind>.tmpl files overriding built-in prompts")
	f.Int("rate-limit", 10, "Generation requests per minute per session (0 disables)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /teach)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set TEACHMATE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a text file as a Word or plain-text document",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("title", "", "Document title (required)")
	f.StringP("input", "i", "-", "Body text file (- for stdin)")
	f.String("format", string(export.FormatDOCX), "Output format (docx, txt)")
	f.String("generated", "", "Generation date printed under the title (RFC 3339, YYYY-MM-DD or now; empty omits it)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Export the teaching feedback log",
		RunE:  runFeedback,
	}
	f := cmd.Flags()
	f.String("data-dir", "data", "Directory with the feedback log")
	f.String("format", "json", "Output format (json, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users, or enable and disable sign-in",
		Args:  cobra.NoArgs,
		RunE:  runUsers,
	}
	f := cmd.Flags()
	f.String("db", "teachmate.db", "SQLite database path")
	f.String("enable", "", "Allow this user to sign in")
	f.String("disable", "", "Stop this user from signing in")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	cmd.MarkFlagsMutuallyExclusive("enable", "disable")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for a users file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
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

	v.SetEnvPrefix("TEACHMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("teachmate")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/teachmate")
	v.AddConfigPath("/etc/teachmate")
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

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if path := v.GetString("users-file"); path != "" {
		if err := importUsers(db, path); err != nil {
			return fmt.Errorf("import users: %w", err)
		}
	}
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	builder, err := prompts.NewWithOverrides(v.GetString("prompts-dir"))
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		llm.WithTimeout(v.GetDuration("llm-timeout")),
		llm.WithTemperature(float32(v.GetFloat64("llm-temperature"))),
	)
	if v.GetBool("llm-check") {
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	dataDir := v.GetString("data-dir")
	feedbackLog, err := logstore.OpenFeedbackLog(dataDir)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	profiles, err := logstore.OpenProfileStore(dataDir)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	maxUploadMB := v.GetInt64("max-upload-mb")
	ingestor := retrieval.NewIngestor(v.GetString("upload-dir"), db, maxUploadMB<<20)
	retriever := retrieval.NewKeywordRetriever(db, retrieval.DefaultTopK)
	orch := orchestrator.New(llmClient, builder, feedbackLog, retriever)

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	appCfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		RateLimit:     v.GetInt("rate-limit"),
		MaxUploadMB:   maxUploadMB,
	}

	h, err := handler.New(handler.Deps{
		Store:        db,
		Orchestrator: orch,
		Feedback:     feedbackLog,
		Profiles:     profiles,
		Ingestor:     ingestor,
	}, appCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"data_dir", dataDir,
		"upload_dir", v.GetString("upload-dir"),
		"rate_limit", appCfg.RateLimit,
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), llm.DefaultTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := db.CleanupExpiredSessions(); err != nil {
				slog.Warn("failed to clean up expired sessions", "error", err)
			} else if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	generated, err := parseGenerated(v.GetString("generated"))
	if err != nil {
		return err
	}
	body, err := readInput(cmd, v.GetString("input"))
	if err != nil {
		return err
	}

	data, err := export.Render(export.Document{
		Title:     v.GetString("title"),
		Body:      string(body),
		Generated: generated,
	}, format)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	return writeOutput(cmd, v.GetString("output"), data)
}

// parseGenerated reads the --generated flag. An empty value gives the zero
// time, so the same input always renders the same bytes.
func parseGenerated(s string) (time.Time, error) {
	switch s = strings.TrimSpace(s); s {
	case "":
		return time.Time{}, nil
	case "now":
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --generated value %q: want RFC 3339, YYYY-MM-DD or now", s)
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	feedbackLog, err := logstore.OpenFeedbackLog(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	entries, err := feedbackLog.LoadAll()
	if err != nil {
		return fmt.Errorf("load feedback log: %w", err)
	}

	var buf bytes.Buffer
	switch strings.ToLower(v.GetString("format")) {
	case "json":
		if err := writeJSON(&buf, entries); err != nil {
			return err
		}
	case "xlsx":
		if err := export.WriteFeedbackWorkbook(&buf, entries); err != nil {
			return fmt.Errorf("build workbook: %w", err)
		}
	default:
		return fmt.Errorf("unknown feedback format %q", v.GetString("format"))
	}
	slog.Info("exported feedback log", "entries", len(entries), "format", v.GetString("format"))
	return writeOutput(cmd, v.GetString("output"), buf.Bytes())
}

func runUsers(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	for _, change := range []struct {
		flag   string
		active bool
	}{{"enable", true}, {"disable", false}} {
		name := v.GetString(change.flag)
		if name == "" {
			continue
		}
		u, err := db.GetUserByUsername(name)
		if err != nil {
			return fmt.Errorf("get user %q: %w", name, err)
		}
		if u == nil {
			return fmt.Errorf("no such user %q", name)
		}
		if err := db.SetUserActive(name, change.active); err != nil {
			return fmt.Errorf("update user %q: %w", name, err)
		}
		slog.Info("updated user", "username", name, "active", change.active)
	}
	return listUsers(db, cmd.OutOrStdout())
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, outPath string, data []byte) error {
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
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
	return nil
}
