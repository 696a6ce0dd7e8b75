package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Client はバックエンドAPI通信用のHTTPクライアント。
// 自動リトライは行わず、1回の呼び出しにつき最大1回だけ送信する。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先バックエンドのベースURL。
	baseURL string
}

// Request はバックエンドに転送するリクエストの内容。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はベースURLからの相対パス。
	Path string
	// RawQuery はエンコード済みのクエリ文字列。
	RawQuery string
	// Header は転送するヘッダー。
	Header http.Header
	// Body はリクエストボディ。nilの場合はボディなし。
	Body io.Reader
}

// Response はバックエンドからの未解釈のレスポンス。
// 呼び出し元はBodyを必ずCloseすること。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// ContentLength はボディ長。不明な場合は-1。
	ContentLength int64
	// Body はレスポンスボディ。
	Body io.ReadCloser
}

// New は新しいバックエンド通信用HTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://backend:8000"）を指定する。
// timeoutはボディの読み取りを含むリクエスト全体の上限。
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:       timeout,
			CheckRedirect: noRedirect,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// WithBearer はセッショントークンに束縛したクライアントを返す。
// 返されたクライアントはすべてのリクエストに Authorization: Bearer ヘッダーを付与する。
func (c *Client) WithBearer(token string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:       c.httpClient.Timeout,
			CheckRedirect: noRedirect,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
				Base:   c.httpClient.Transport,
			},
		},
		baseURL: c.baseURL,
	}
}

// noRedirect はリダイレクトを追跡せず、3xxレスポンスをそのまま返させる。
// Bearerトークンはトランスポートで付与されるため、追跡するとリダイレクト先のホストにも送信されてしまう。
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do はリクエストをバックエンドに送信し、レスポンスを解釈せずに返す。
// 2xx以外のステータスもエラーにはしない。エラーになるのは通信自体の失敗のみ。
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	target := c.baseURL + r.Path
	if r.RawQuery != "" {
		target += "?" + r.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// クエリに認可コード等が含まれ得るため、URLを含まない原因だけを返す
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗 (%s %s): %w", r.Method, r.Path, err)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// バックエンドのログとgatewayのログを突き合わせるために使用する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
