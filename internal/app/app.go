package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/verifybot/internal/config"
	"github.com/hitoshi/verifybot/internal/database"
	"github.com/hitoshi/verifybot/internal/discord"
	"github.com/hitoshi/verifybot/internal/handler"
	"github.com/hitoshi/verifybot/internal/logger"
	"github.com/hitoshi/verifybot/internal/metrics"
	"github.com/hitoshi/verifybot/internal/reconcile"
	"github.com/hitoshi/verifybot/internal/repository"
	"github.com/hitoshi/verifybot/internal/verification"
)

// shutdownTimeout はHTTPサーバーの停止と実行中セッションの終了を待つ上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 返り値のCloserはLOG_FILEで開いたログファイルを閉じる。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログレベルと出力先を確定する
	closer, err := logger.Configure(w, logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(config.ServerPort())
	}

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer closer.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("record_store", string(cfg.RecordStore)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImportWorkbook:
		if len(args) < 2 || args[1] == "" {
			return errors.New("usage: import-workbook <path to .xlsx>")
		}
		return runImportWorkbook(cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// runServe はDiscordゲートウェイと運用HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if err := cfg.RequireDiscord(); err != nil {
		return err
	}

	// 1. 会員台帳
	repo, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. ドメインサービスの初期化
	reconciler := reconcile.NewReconciler(repo, slog.Default(), collector)

	gateway, err := discord.New(discord.Config{
		Token:                   cfg.DiscordToken,
		GuildID:                 cfg.GuildID,
		VerificationChannelName: cfg.VerificationChannelName,
		VerificationEmoji:       cfg.VerificationEmoji,
		CommandPrefix:           cfg.CommandPrefix,
	}, slog.Default())
	if err != nil {
		return err
	}

	limiter := verification.NewStartLimiter(startLimiterConfig(cfg))
	defer limiter.Stop()

	service := verification.NewService(sessionConfig(cfg), verification.ServiceDeps{
		Messenger:  gateway.Messenger(),
		Reconciler: reconciler,
		Limiter:    limiter,
		Observer:   verification.Observers{verification.NewLogObserver(slog.Default()), collector},
		Logger:     slog.Default(),
	})

	// 4. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Store:    repo,
		Sessions: service,
		Gatherer: reg,
		Logger:   slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gateway.Run(gctx, service)
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := service.Wait(shutdownCtx); err != nil {
			slog.Warn("verification sessions did not finish before shutdown",
				slog.Int("active_sessions", service.ActiveSessions()),
			)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("stopped gracefully")
	return nil
}

func sessionConfig(cfg *config.Config) verification.Config {
	sc := verification.DefaultConfig()
	sc.PromptTimeout = cfg.PromptTimeout
	sc.MaxDuration = cfg.SessionMaxDuration
	sc.VerifiedRole = cfg.VerifiedRoleName
	sc.UnverifiedRoles = cfg.UnverifiedRoleNames
	sc.WelcomeChannel = cfg.WelcomeChannelName
	return sc
}

func startLimiterConfig(cfg *config.Config) verification.LimiterConfig {
	lc := verification.DefaultLimiterConfig()
	if cfg.StartRatePerMinute > 0 {
		// 設定値は回/分なので回/秒に変換する
		lc.Rate = rate.Limit(float64(cfg.StartRatePerMinute) / 60.0)
	}
	if cfg.StartBurst > 0 {
		lc.Burst = cfg.StartBurst
	}
	return lc
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runImportWorkbook は元のExcel台帳をPostgreSQLの会員台帳へ並び順のまま取り込む。
func runImportWorkbook(cfg *config.Config, path string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for import-workbook")
	}

	records, err := repository.ReadWorkbook(path, cfg.WorkbookSheet)
	if err != nil {
		return err
	}

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("importing workbook",
		slog.String("path", path),
		slog.String("sheet", cfg.WorkbookSheet),
		slog.Int("rows", len(records)),
	)

	_, err = importRecords(context.Background(), repository.NewPostgresMemberRepo(db), records)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
