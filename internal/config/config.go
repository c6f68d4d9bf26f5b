package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ストアとBLOBストレージのドライバー名。
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	BlobDriverDisk = "disk"
	BlobDriverS3   = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	StoreDriver string
	DatabaseURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitAuth    int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// Mail
	SMTP              SMTPConfig
	MailRatePerMinute int

	// Blob
	BlobDriver    string
	UploadDir     string
	S3            S3Config
	AvatarMaxSize int64

	// Overdue
	OverdueScanInterval time.Duration
	ReminderInterval    time.Duration

	// Logging
	LogLevel string
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled はSMTP送信が設定されているかどうかを返す。
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// S3Config はS3互換ストレージの設定。
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

var defaults = map[string]any{
	"store_driver":          StoreDriverPostgres,
	"token_ttl":             "720h",
	"rate_limit_general":    120,
	"rate_limit_auth":       10,
	"server_port":           "8080",
	"base_url":              "http://localhost:8080",
	"cors_allowed_origin":   "http://localhost:5173",
	"smtp_host":             "",
	"smtp_port":             587,
	"smtp_username":         "",
	"smtp_password":         "",
	"smtp_from":             "",
	"mail_rate_per_minute":  30,
	"blob_driver":           BlobDriverDisk,
	"upload_dir":            "uploads",
	"s3_endpoint":           "",
	"s3_bucket":             "",
	"s3_access_key":         "",
	"s3_secret_key":         "",
	"s3_use_ssl":            true,
	"avatar_max_size":       "5MB",
	"overdue_scan_interval": "1h",
	"reminder_interval":     "24h",
	"log_level":             "info",
	"database_url":          "",
	"jwt_secret":            "",
}

// flagKeys はコマンドラインフラグ名と設定キーの対応。
var flagKeys = map[string]string{
	"port":      "server_port",
	"store":     "store_driver",
	"log-level": "log_level",
}

// RegisterFlags は環境変数をコマンドラインで上書きするためのフラグをfsに登録する。
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("port", "", "HTTP listen port (SERVER_PORT)")
	fs.String("store", "", "store driver: postgres or memory (STORE_DRIVER)")
	fs.String("log-level", "", "log level: debug, info, warn or error (LOG_LEVEL)")
}

// Load は環境変数からConfigを読み込む。
// fsが指定された場合、明示的に指定されたフラグは環境変数より優先する。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	return bind(v)
}

func bind(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		StoreDriver:       strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		DatabaseURL:       v.GetString("database_url"),
		JWTSecret:         v.GetString("jwt_secret"),
		TokenTTL:          v.GetDuration("token_ttl"),
		RateLimitGeneral:  v.GetInt("rate_limit_general"),
		RateLimitAuth:     v.GetInt("rate_limit_auth"),
		ServerPort:        v.GetString("server_port"),
		BaseURL:           strings.TrimRight(v.GetString("base_url"), "/"),
		CORSAllowedOrigin: v.GetString("cors_allowed_origin"),
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp_host"),
			Port:     v.GetInt("smtp_port"),
			Username: v.GetString("smtp_username"),
			Password: v.GetString("smtp_password"),
			From:     v.GetString("smtp_from"),
		},
		MailRatePerMinute: v.GetInt("mail_rate_per_minute"),
		BlobDriver:        strings.ToLower(strings.TrimSpace(v.GetString("blob_driver"))),
		UploadDir:         v.GetString("upload_dir"),
		S3: S3Config{
			Endpoint:  v.GetString("s3_endpoint"),
			Bucket:    v.GetString("s3_bucket"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
			UseSSL:    v.GetBool("s3_use_ssl"),
		},
		OverdueScanInterval: v.GetDuration("overdue_scan_interval"),
		ReminderInterval:    v.GetDuration("reminder_interval"),
		LogLevel:            v.GetString("log_level"),
	}

	// Required fields
	var missing []string
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.BlobDriver == BlobDriverS3 {
		if cfg.S3.Endpoint == "" {
			missing = append(missing, "S3_ENDPOINT")
		}
		if cfg.S3.Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.BlobDriver {
	case BlobDriverDisk, BlobDriverS3:
	default:
		return nil, fmt.Errorf("unsupported BLOB_DRIVER %q", cfg.BlobDriver)
	}

	size, err := humanize.ParseBytes(v.GetString("avatar_max_size"))
	if err != nil {
		return nil, fmt.Errorf("parse AVATAR_MAX_SIZE: %w", err)
	}
	cfg.AvatarMaxSize = int64(size)

	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	return cfg, nil
}
