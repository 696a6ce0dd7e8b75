// shelfgateのエントリポイント。
// ブラウザとバックエンドAPIの間に立ち、セッションCookieをBearerトークンに変換して転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/shelfgate/internal/config"
	"github.com/nao1215/shelfgate/internal/gateway"
	"github.com/spf13/cobra"
)

var (
	// port は--portフラグの値。指定された場合はPORTより優先する。
	port string
	// backendURL は--backend-urlフラグの値。指定された場合はBACKEND_URLより優先する。
	backendURL string
)

// rootCmd はgatewayを起動するコマンド。
var rootCmd = &cobra.Command{
	Use:   "shelfgate",
	Short: "Authenticated edge gateway for the library backend",
	Long: `shelfgate sits between the browser and the backend API. It keeps the
session token in an HttpOnly cookie, attaches it as a bearer header to
backend calls, and normalizes backend errors into {"detail": ...} responses.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		server, err := gateway.NewServer(cfg)
		if err != nil {
			return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf("Gatewayサービスを起動します: :%s (backend=%s)", cfg.Port, cfg.BackendURL)
		if err := server.Run(ctx); err != nil {
			return fmt.Errorf("Gatewayサービスの起動に失敗: %w", err)
		}
		log.Printf("Gatewayサービスを停止しました")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	rootCmd.Flags().StringVar(&backendURL, "backend-url", "", "backend base URL (overrides BACKEND_URL)")
}

// loadConfig は環境変数から設定を読み込み、フラグで上書きする。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("backend-url") {
		// PUBLIC_BACKEND_URLが未指定ならブラウザ向けの転送先も追従させる
		if os.Getenv("PUBLIC_BACKEND_URL") == "" {
			cfg.PublicBackendURL = backendURL
		}
		cfg.BackendURL = backendURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
