package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/accountd/internal/auth"
	"github.com/hitoshi/accountd/internal/config"
	"github.com/hitoshi/accountd/internal/database"
	"github.com/hitoshi/accountd/internal/handler"
	"github.com/hitoshi/accountd/internal/logger"
	"github.com/hitoshi/accountd/internal/metrics"
	"github.com/hitoshi/accountd/internal/middleware"
	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
	"github.com/hitoshi/accountd/internal/token"
	"github.com/hitoshi/accountd/internal/user"
)

// ErrPromoteRequiresDatabase はインメモリストアに対してpromoteを実行した場合に返る。
var ErrPromoteRequiresDatabase = errors.New("promote requires a persistent database")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, false)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. DEBUG指定時はログレベルを下げて再設定する
	if cfg.Debug {
		logger.SetupDefault(w, true)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("project", cfg.ProjectName),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, commandArgs(args))
	case CommandPromote:
		return runPromote(cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openUserRepo は設定に応じたユーザーリポジトリを返す。
// memory:// の場合はプロセス内ストア、それ以外はPostgreSQLに接続する。
// 返されるclose関数は必ず呼び出すこと。
func openUserRepo(cfg *config.Config) (repository.UserRepository, func(), error) {
	if database.IsMemoryURL(cfg.DatabaseURL) {
		slog.Warn("using in-memory user store; data is lost on exit")
		return repository.NewMemoryUserRepo(), func() {}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("auto migration failed: %w", err)
		}
		slog.Info("database migrations applied")
	}

	return repository.NewPostgresUserRepo(db), func() { db.Close() }, nil
}

// buildHandler はリポジトリ以外の全依存関係をワイヤリングし、HTTPハンドラーを返す。
// 返されるstop関数はレートリミッターのバックグラウンド処理を停止する。
func buildHandler(cfg *config.Config, users repository.UserRepository) (http.Handler, func(), error) {
	// 1. トークン・パスワード
	tokens, err := token.NewService(token.Config{
		Secret:     []byte(cfg.SecretKey),
		Algorithm:  cfg.Algorithm,
		DefaultTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token service: %w", err)
	}
	hasher := password.NewHasher(cfg.BcryptCost)

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 3. ドメインサービスの初期化
	gate := auth.NewGate(tokens, users, collector)
	authService := auth.NewService(users, hasher, tokens, collector)
	userService := user.NewService(users, hasher)

	// 4. ルーターの構築
	loginLimiter := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(cfg.RateLimitLogin))

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		HTTPRecorder:      collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		LoginRateLimiter:  loginLimiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,

		Gate: gate,

		AuthService: authService,
		UserService: userService,

		MetricsHandler: metrics.Handler(reg),
	}

	return handler.NewRouter(deps), loginLimiter.Stop, nil
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	users, closeRepo, err := openUserRepo(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	router, stopLimiter, err := buildHandler(cfg, users)
	if err != nil {
		return err
	}
	defer stopLimiter()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen failed: %w", err)
	case <-stop:
	}

	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしの場合はすべての未適用マイグレーションを適用し、"down"の場合は1つ戻す。
func runMigrate(cfg *config.Config, args []string) error {
	if database.IsMemoryURL(cfg.DatabaseURL) {
		slog.Info("in-memory store has no schema; nothing to migrate")
		return nil
	}

	if len(args) > 0 && args[0] == "down" {
		slog.Info("rolling back last database migration",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back successfully")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runPromote は指定メールアドレスのユーザーに管理者フラグを立てる。
func runPromote(cfg *config.Config, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New("usage: promote <email>")
	}
	if database.IsMemoryURL(cfg.DatabaseURL) {
		return ErrPromoteRequiresDatabase
	}

	users, closeRepo, err := openUserRepo(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := promoteUser(ctx, users, args[0])
	if err != nil {
		return err
	}

	slog.Info("user promoted to admin",
		slog.Int64("user_id", u.ID),
	)
	return nil
}

// promoteUser はメールアドレスでユーザーを検索し、is_admin=trueに更新する。
func promoteUser(ctx context.Context, users repository.UserRepository, email string) (*model.User, error) {
	u, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %q not found", email)
	}
	if u.IsAdmin {
		return u, nil
	}

	isAdmin := true
	updated, err := users.Update(ctx, u.ID, repository.UserFields{IsAdmin: &isAdmin})
	if err != nil {
		return nil, fmt.Errorf("failed to promote user: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("user %q not found", email)
	}
	return updated, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s%s", port, handler.HealthPath)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
