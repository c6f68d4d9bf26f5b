package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hitoshi/foliora/internal/auth"
	"github.com/hitoshi/foliora/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateAdmin は管理者ユーザーを作成することを示す。
	CommandCreateAdmin Command = "create-admin"
)

// NewRootCommand はfolioraのルートコマンドを生成する。
// サブコマンドを指定しない場合はserveとして動作する。
// wはログの出力先。
func NewRootCommand(w io.Writer) *cobra.Command {
	var cfg *config.Config

	// load はサブコマンド実行前に設定とログを初期化する。
	load := func(cmd *cobra.Command, args []string) error {
		loaded, err := Init(w, cmd.Flags())
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		cfg = loaded
		slog.Info("starting application",
			slog.String("command", cmd.Name()),
			slog.String("port", cfg.ServerPort),
			slog.String("base_url", cfg.BaseURL),
		)
		return nil
	}

	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runServe(ctx, cfg)
	}

	root := &cobra.Command{
		Use:               "foliora",
		Short:             "Foliora is a peer-to-peer book sharing API server",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: load,
		RunE:              serve,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the HTTP API server",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run the overdue reminder worker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				return runWorker(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cfg)
			},
		},
		newHealthcheckCommand(),
		newCreateAdminCommand(&cfg),
	)
	return root
}

// newHealthcheckCommand はhealthcheckサブコマンドを生成する。
// 軽量サブコマンドのため、設定の読み込みとログの初期化をスキップする。
// 接続先ポートは --port、SERVER_PORT、8080 の順で決まる。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe /health of a running server (for container health checks)",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetString("port")
			if port == "" {
				port = healthcheckPort()
			}
			return runHealthcheck(port)
		},
	}
}

// newCreateAdminCommand はcreate-adminサブコマンドを生成する。
// パスワードは端末からはエコーなしで、それ以外は標準入力の1行目から読み込む。
func newCreateAdminCommand(cfg **config.Config) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   string(CommandCreateAdmin),
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			id, err := createAdmin(cmd.Context(), *cfg, username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", username, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// createAdmin はストアを開いて管理者ユーザーを作成し、そのIDを返す。
func createAdmin(ctx context.Context, cfg *config.Config, username, email, password string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer st.Close()

	service := auth.NewService(st.store.Repos().Users, auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL))
	user, err := service.CreateAdmin(ctx, username, email, password)
	if err != nil {
		return "", err
	}
	slog.Info("admin user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user.ID, nil
}

// readPassword はパスワードを読み込む。
// 入力が端末の場合はpromptを表示してエコーなしで読み込む。
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
