package gateway

import (
	"net/http"

	"github.com/nao1215/shelfgate/pkg/httpclient"
)

// authenticatedClient はリクエストのセッションCookieに束縛したバックエンドクライアントを返す。
// セッションCookieが無い場合は401相当の*ProxyErrorを返し、バックエンドには一切送信しない。
// 返したクライアントはすべての呼び出しにBearerトークンを付与する。
func (s *Server) authenticatedClient(r *http.Request) (*httpclient.Client, error) {
	token, ok := s.cookies.SessionToken(r)
	if !ok {
		return nil, errUnauthenticated()
	}
	return s.backend.WithBearer(token), nil
}
