package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/foliora/internal/blob"
	"github.com/hitoshi/foliora/internal/config"
	"github.com/hitoshi/foliora/internal/database"
	"github.com/hitoshi/foliora/internal/handler"
	"github.com/hitoshi/foliora/internal/middleware"
	"github.com/hitoshi/foliora/internal/notify"
	"github.com/hitoshi/foliora/internal/repository"
	"github.com/hitoshi/foliora/internal/repository/memory"
)

// pingTimeout は起動時のDB疎通確認のタイムアウト。
const pingTimeout = 5 * time.Second

// openedStore は起動したストアと、その後始末・ヘルスチェック対象をまとめたもの。
type openedStore struct {
	store  repository.Store
	health handler.HealthChecker
	db     *sql.DB
}

// Close はDB接続を閉じる。メモリストアの場合は何もしない。
func (s *openedStore) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}

// openStore はSTORE_DRIVERに応じたストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store, data will be lost on shutdown")
		return &openedStore{store: memory.NewStore()}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, pingTimeout); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	if version, dirty, err := database.SchemaVersion(cfg.DatabaseURL); err != nil {
		slog.Warn("failed to read schema version", slog.String("error", err.Error()))
	} else if version == 0 || dirty {
		slog.Warn("database schema is not migrated, run the migrate command",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return &openedStore{
		store:  repository.NewPostgresStore(db),
		health: db,
		db:     db,
	}, nil
}

// openBlobStore はBLOB_DRIVERに応じたアバター保存先を開く。
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case config.BlobDriverS3:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 blob store: %w", err)
		}
		return store, nil
	default:
		store, err := blob.NewDiskStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk blob store: %w", err)
		}
		return store, nil
	}
}

// newNotifier はSMTPが設定されていればSMTPNotifierを、未設定ならLogNotifierを返す。
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if !cfg.SMTP.Enabled() {
		slog.Warn("SMTP is not configured, reminders will only be logged")
		return notify.NewLogNotifier(slog.Default()), nil
	}

	n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure smtp notifier: %w", err)
	}
	return n, nil
}

// newRateLimiter はConfigのreq/min設定からレートリミッターを生成する。
func newRateLimiter(cfg *config.Config) *middleware.RateLimiter {
	rlCfg := middleware.DefaultRateLimiterConfig()
	// configはreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAuth > 0 {
		rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
		rlCfg.AuthBurst = cfg.RateLimitAuth
	}
	return middleware.NewRateLimiter(rlCfg)
}
