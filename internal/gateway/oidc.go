package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shelfgate/pkg/forwarded"
	"github.com/nao1215/shelfgate/pkg/httpclient"
	"github.com/nao1215/shelfgate/pkg/middleware"
	"github.com/nao1215/shelfgate/pkg/session"
)

const (
	// oidcCallbackPath はOIDCプロバイダーからの戻り先となるgatewayのパス。
	oidcCallbackPath = "/auth/oidc/callback"
	// backendOIDCLoginPath はバックエンドのOIDCログイン入口。
	backendOIDCLoginPath = "/auth/oidc/login"
	// backendOIDCCallbackPath は認可コードをセッショントークンに交換するバックエンドのパス。
	backendOIDCCallbackPath = "/auth/oidc/callback"
	// oidcFailureRedirect はOIDCログインに失敗した場合のブラウザの遷移先。
	oidcFailureRedirect = "/login?error=oidc_failed"
)

// handleOIDCLogin はバックエンドのOIDC入口へリダイレクトしてフェデレーションログインを開始するハンドラを返す。
// ログイン後の遷移先は、プロバイダーの往復でクエリが保持されない場合に備えてCookieにも保存する。
func (s *Server) handleOIDCLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		next := session.SafeNextPath(c.Query("next"))

		query := url.Values{
			"redirect_uri": {s.callbackURL(c.Request)},
			"next":         {next},
		}
		target := strings.TrimRight(s.cfg.PublicBackendURL, "/") + backendOIDCLoginPath + "?" + query.Encode()

		s.cookies.SetNext(c.Writer, next)
		c.Redirect(http.StatusFound, target)
	}
}

// handleOIDCCallback はOIDCプロバイダーからの戻りを処理するハンドラを返す。
// 認可コードをバックエンドでセッショントークンに交換し、セッションCookieを発行してから
// ログイン前に保存した遷移先へリダイレクトする。トークンはURLに一切含めない。
func (s *Server) handleOIDCCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		next := s.cookies.ReadAndClearNext(c.Writer, c.Request)

		query := c.Request.URL.Query()
		query.Set("redirect_uri", s.callbackURL(c.Request))
		env, err := forward(requestContext(c), s.backend, opOIDCCallback, httpclient.Request{
			Method:   http.MethodGet,
			Path:     backendOIDCCallbackPath,
			RawQuery: query.Encode(),
			Header:   pickHeaders(c.Request.Header, []string{"Accept-Language"}),
		})
		if err != nil {
			log.Printf("[OIDC] コールバックの処理に失敗: request_id=%s error=%v", middleware.GetRequestID(c), err)
			c.Redirect(http.StatusFound, oidcFailureRedirect)
			return
		}

		token := accessToken(env.Body)
		if token == "" {
			log.Printf("[OIDC] バックエンドのレスポンスにaccess_tokenが含まれていない: request_id=%s", middleware.GetRequestID(c))
			c.Redirect(http.StatusFound, oidcFailureRedirect)
			return
		}

		s.cookies.SetSession(c.Writer, c.Request, token)
		c.Redirect(http.StatusFound, next)
	}
}

// callbackURL はOIDCプロバイダーに渡すgatewayのコールバックURLを返す。
// PUBLIC_URLが設定されていればそれを、無ければリクエストから導出したオリジンを使う。
func (s *Server) callbackURL(r *http.Request) string {
	origin := strings.TrimRight(s.cfg.PublicURL, "/")
	if origin == "" {
		origin = forwarded.Origin(r)
	}
	return origin + oidcCallbackPath
}

// accessToken はバックエンドのレスポンスボディからaccess_tokenを取り出す。
// 値が無い、または文字列でない場合は空文字列を返す。
func accessToken(body []byte) string {
	var payload struct {
		AccessToken any `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	token, _ := payload.AccessToken.(string)
	return token
}
