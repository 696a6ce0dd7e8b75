package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shelfgate/internal/config"
	"github.com/nao1215/shelfgate/pkg/httpclient"
	"github.com/nao1215/shelfgate/pkg/middleware"
	"github.com/nao1215/shelfgate/pkg/session"
)

// shutdownTimeout はグレースフルシャットダウンで処理中のリクエストを待つ上限。
const shutdownTimeout = 10 * time.Second

// Server はgatewayのHTTPサーバー。
// 設定とバックエンドクライアント以外の状態を持たず、リクエスト間で可変な状態を共有しない。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は実行時設定。
	cfg *config.Config
	// backend はセッションに束縛されていないバックエンドクライアント。
	backend *httpclient.Client
	// cookies はセッションCookieとログイン後遷移先Cookieを管理する。
	cookies *session.Manager
}

// NewServer は新しいgatewayサーバーを生成する。
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正: %w", err)
	}

	if cfg.PublicURL == "" {
		log.Printf("[Config] PUBLIC_URLが未設定のため、OIDCのredirect_uriをHostヘッダーから導出します。本番環境では設定してください")
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	// コールバックのクエリには認可コードが含まれるためアクセスログに残さない
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{oidcCallbackPath, "/health"},
	}))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	s := &Server{
		router:  router,
		cfg:     cfg,
		backend: httpclient.New(cfg.BackendURL, cfg.BackendTimeout),
		cookies: session.NewManager(cfg.SecureCookies),
	}
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルにシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		return nil
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント
	auth := s.router.Group("/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/logout", s.handleLogout())
		auth.GET("/oidc/login", s.handleOIDCLogin())
		auth.GET("/oidc/callback", s.handleOIDCCallback())
		// セッション必須
		auth.GET("/settings", s.handleProxy(opAuthSettings, "/auth/settings"))
	}

	// 書籍の一時カバー画像（セッション必須、バイナリ）
	s.router.GET("/books/temp-covers/:file", s.handleProxyWithParam(opTempCover, "/books/temp-covers/", "file"))

	// ダウンロードクライアントの接続テスト（セッション必須）
	s.router.POST("/download-clients/:id/test", s.handleProxyWithParam(opDownloadClientTest, "/download-clients/", "id", "/test"))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// handleLogin はログイン要求をバックエンドへ転送するハンドラを返す。
// 成功レスポンスにaccess_tokenが含まれていればセッションCookieを発行する。
// レスポンスボディはバックエンドのものをそのまま返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := s.newBackendRequest(c, "/auth/login")
		if err != nil {
			writeError(c, err)
			return
		}

		env, err := forward(requestContext(c), s.backend, opLogin, req)
		if err != nil {
			writeError(c, err)
			return
		}

		if token := accessToken(env.Body); token != "" {
			s.cookies.SetSession(c.Writer, c.Request, token)
		}
		writeEnvelope(c, env)
	}
}

// handleLogout はセッションCookieを失効させるハンドラを返す。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.cookies.ClearSession(c.Writer, c.Request)
		c.JSON(http.StatusOK, gin.H{"detail": "Logged out"})
	}
}

// handleProxy はセッションに束縛したクライアントで指定パスへプロキシするハンドラを返す。
func (s *Server) handleProxy(op operation, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.doProxy(c, op, path)
	}
}

// handleProxyWithParam はURLパラメータを含むプロキシハンドラを返す。
// パラメータはパスセグメントとしてエスケープしてから埋め込む。
func (s *Server) handleProxyWithParam(op operation, pathPrefix, paramName string, pathSuffix ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := pathPrefix + url.PathEscape(c.Param(paramName))
		for _, suffix := range pathSuffix {
			path += suffix
		}
		s.doProxy(c, op, path)
	}
}

// doProxy はセッション必須のリクエストをバックエンドにプロキシする共通処理。
// セッションが無ければバックエンドを呼ばずに401を返す。
func (s *Server) doProxy(c *gin.Context, op operation, path string) {
	client, err := s.authenticatedClient(c.Request)
	if err != nil {
		writeError(c, err)
		return
	}

	req, err := s.newBackendRequest(c, path)
	if err != nil {
		writeError(c, err)
		return
	}

	env, err := forward(requestContext(c), client, op, req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeEnvelope(c, env)
}
