package main

import (
	"context"
	"encoding/json"
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

	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/engine"
	"github.com/pavelanni/tutorstats/internal/handler"
	appI18n "github.com/pavelanni/tutorstats/internal/i18n"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/store"
	"github.com/pavelanni/tutorstats/internal/stream"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutorstats",
		Short: "Learning analytics for tutoring conversations",
	}

	serve := serveCmd()
	root.AddCommand(serve, replayCmd(), reportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutorstats --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP analytics server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "tutorstats.db", "SQLite journal path (empty disables journaling)")
	f.StringP("lang", "l", "en", "Default language for insights and recommendations (en, ru)")
	f.StringSlice("kafka-brokers", nil, "Kafka brokers to consume submissions from (repeatable)")
	f.String("kafka-topic", "tutorstats.submissions", "Kafka topic carrying submissions")
	f.String("kafka-group", "tutorstats", "Kafka consumer group")
	f.Float64("ingest-rate", 50, "Ingestion requests per second (0 = unlimited)")
	f.Int("ingest-burst", 100, "Ingestion burst size")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild analytics from the journal and print a JSON snapshot",
		RunE:  runReplay,
	}
	f := cmd.Flags()
	f.String("db", "tutorstats.db", "SQLite journal path")
	f.String("period", "week", "Reporting period (day, week, month)")
	f.StringP("lang", "l", "en", "Language for insights and recommendations (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a session report rebuilt from the journal",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.String("db", "tutorstats.db", "SQLite journal path")
	f.String("period", "week", "Reporting period (day, week, month)")
	f.StringP("lang", "l", "en", "Report language (en, ru)")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("TUTORSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutorstats")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutorstats")
	v.AddConfigPath("/etc/tutorstats")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildEngine loads the configuration and translations and creates an engine.
func buildEngine(v *viper.Viper, opts ...engine.Option) (*engine.Engine, *appI18n.Bundle, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	bundle, err := appI18n.New(v.GetString("lang"))
	if err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	opts = append(opts, engine.WithTranslator(bundle.Translator()))
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	return eng, bundle, nil
}

// replayJournal rebuilds eng from db and records the outcome.
func replayJournal(ctx context.Context, eng *engine.Engine, db *store.Store) (model.ReplayStats, error) {
	stats, err := eng.Replay(ctx, db)
	if err != nil {
		return stats, err
	}
	if err := db.SetReplayStats(stats, time.Now()); err != nil {
		slog.Warn("record replay stats", "error", err)
	}
	return stats, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []engine.Option
	var db *store.Store
	if path := v.GetString("db"); path != "" {
		var err error
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		opts = append(opts, engine.WithJournal(db))
	}

	eng, bundle, err := buildEngine(v, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	if db != nil {
		if _, err := replayJournal(ctx, eng, db); err != nil {
			return err
		}
	}

	if brokers := v.GetStringSlice("kafka-brokers"); len(brokers) > 0 {
		consumer := stream.NewConsumer(stream.NewReader(stream.Config{
			Brokers: brokers,
			Topic:   v.GetString("kafka-topic"),
			GroupID: v.GetString("kafka-group"),
		}), eng)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("stream consumer failed", "error", err)
			}
		}()
		slog.Info("consuming submissions", "brokers", brokers, "topic", v.GetString("kafka-topic"))
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(bundle))
	handler.New(eng, v.GetFloat64("ingest-rate"), v.GetInt("ingest-burst")).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"lang", v.GetString("lang"),
		"journal", v.GetString("db"),
		"ingest_rate", v.GetFloat64("ingest-rate"),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runReplay(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	eng, _, err := buildEngine(v)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := replayJournal(ctx, eng, db)
	if err != nil {
		return err
	}

	snap := eng.Snapshot(ctx, model.ParsePeriod(v.GetString("period")))
	snap.Replayed = stats

	data, err := json.MarshalIndent(snap, "", "  ")
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

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	eng, bundle, err := buildEngine(v)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := eng.Replay(ctx, db); err != nil {
		return err
	}

	tr := bundle.Translator()
	ctx = appI18n.WithTranslator(ctx, tr)
	report := eng.GetSessionReport(ctx, model.ParsePeriod(v.GetString("period")))
	health := eng.GetSystemHealth(ctx)
	writeReport(cmd.OutOrStdout(), report, health, tr)
	return nil
}

func writeReport(w io.Writer, r model.SessionReport, h model.SystemHealth, tr *appI18n.Translator) {
	fmt.Fprintf(w, "%s (%s)\n", tr.Tp("SessionsAnalyzed", r.TotalSessions), r.Period)
	fmt.Fprintf(w, "  avg effectiveness: %.2f\n", r.AvgEffectiveness)
	fmt.Fprintf(w, "  breakthroughs:     %d\n", r.TotalBreakthroughs)
	if len(r.ConceptsCovered) > 0 {
		fmt.Fprintf(w, "  concepts:          %s\n", strings.Join(r.ConceptsCovered, ", "))
	}
	for _, m := range r.TopMethods {
		fmt.Fprintf(w, "  method %-28s x%d  avg %.2f\n", m.Method, m.Count, m.AvgScore)
	}
	for _, b := range r.BreakthroughTypes {
		fmt.Fprintf(w, "  %-30s x%d\n", b.Type, b.Count)
	}
	fmt.Fprintf(w, "  trend:             %s\n", r.LearningTrend)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "  * %s\n", rec)
	}
	fmt.Fprintf(w, "health: %s\n", h.Status)
	for _, issue := range h.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}
