// Package config はgatewayの設定を環境変数から読み込む。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config はgatewayの実行時設定。
type Config struct {
	// Port はサーバーのリッスンポート。ENV: PORT
	Port string `env:"PORT,default=8080"`
	// BackendURL はgatewayからバックエンドAPIへ接続するベースURL。ENV: BACKEND_URL
	BackendURL string `env:"BACKEND_URL,default=http://localhost:8000"`
	// PublicBackendURL はブラウザをOIDCログインへリダイレクトする際のバックエンドのベースURL。
	// 未設定の場合はBackendURLを使用する。ENV: PUBLIC_BACKEND_URL
	PublicBackendURL string `env:"PUBLIC_BACKEND_URL"`
	// PublicURL はブラウザから見たgatewayのオリジン。OIDCのredirect_uriに使う。
	// 未設定の場合はクライアントが指定したHostヘッダーから導出するため、本番環境では必ず設定すること。
	// ENV: PUBLIC_URL
	PublicURL string `env:"PUBLIC_URL"`
	// FrontendURL はCORSで許可するフロントエンドのオリジン。ENV: FRONTEND_URL
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
	// SecureCookies はデプロイ環境としてCookieのSecure属性を常に付与するか。ENV: SECURE_COOKIES
	SecureCookies bool `env:"SECURE_COOKIES,default=false"`
	// BackendTimeout はバックエンド呼び出しの上限時間。ENV: BACKEND_TIMEOUT
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT,default=30s"`
	// MaxBodyBytes は受け付けるリクエストボディの最大バイト数。ENV: MAX_BODY_BYTES
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES,default=1048576"`
}

// Load は環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	if cfg.PublicBackendURL == "" {
		cfg.PublicBackendURL = cfg.BackendURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値が妥当であるかを検証する。
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORTが空です")
	}
	for name, raw := range map[string]string{
		"BACKEND_URL":        c.BackendURL,
		"PUBLIC_BACKEND_URL": c.PublicBackendURL,
	} {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("%sが不正: %w", name, err)
		}
	}
	if c.PublicURL != "" {
		if err := validateBaseURL(c.PublicURL); err != nil {
			return fmt.Errorf("PUBLIC_URLが不正: %w", err)
		}
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUTは正の値である必要があります: %s", c.BackendTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTESは正の値である必要があります: %d", c.MaxBodyBytes)
	}
	return nil
}

// validateBaseURL はhttp(s)の絶対URLであることを検証する。
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("スキームはhttpまたはhttpsである必要があります: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("ホストが指定されていません: %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("クエリやフラグメントは指定できません: %q", raw)
	}
	return nil
}
