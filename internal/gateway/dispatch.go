package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/gin-gonic/gin"
	"github.com/nao1215/shelfgate/pkg/httpclient"
	"github.com/nao1215/shelfgate/pkg/middleware"
)

// payloadKind はバックエンドのレスポンスボディの扱い方。
type payloadKind int

const (
	// payloadJSON はボディをJSONとして読み込み、検証してから返す。
	payloadJSON payloadKind = iota
	// payloadBinary はボディを解釈せずにストリームとして返す。
	payloadBinary
)

// maxErrorBodyBytes はエラーレスポンスから読み込むボディの上限。
const maxErrorBodyBytes = 64 << 10

var jsonMediaType = contenttype.NewMediaType("application/json")

// forwardedRequestHeaders はバックエンドへ転送する受信リクエストのヘッダー。
// CookieとAuthorizationは転送せず、セッションはBearerトークンに変換する。
var forwardedRequestHeaders = []string{"Content-Type", "Accept", "Accept-Language"}

// passThroughResponseHeaders はバイナリレスポンスでそのまま返すバックエンドのヘッダー。
var passThroughResponseHeaders = []string{"Cache-Control", "ETag", "Last-Modified"}

// operation はバックエンドへ転送する1種類の呼び出しを表す。
type operation struct {
	// name はログに出力する操作名。
	name string
	// kind はレスポンスボディの扱い方。
	kind payloadKind
	// failureMessage はバックエンドがdetailを返さなかった場合のメッセージ。
	failureMessage string
	// defaultContentType はバックエンドがContent-Typeを返さなかった場合の値。
	defaultContentType string
}

var (
	opLogin = operation{
		name:               "login",
		kind:               payloadJSON,
		failureMessage:     "Login failed",
		defaultContentType: "application/json",
	}
	opAuthSettings = operation{
		name:               "auth_settings",
		kind:               payloadJSON,
		failureMessage:     "Failed to fetch auth settings",
		defaultContentType: "application/json",
	}
	opTempCover = operation{
		name:               "temp_cover",
		kind:               payloadBinary,
		failureMessage:     "Failed to fetch cover",
		defaultContentType: "image/jpeg",
	}
	opDownloadClientTest = operation{
		name:               "download_client_test",
		kind:               payloadJSON,
		failureMessage:     "Connection test failed",
		defaultContentType: "application/json",
	}
	opOIDCCallback = operation{
		name:               "oidc_callback",
		kind:               payloadJSON,
		failureMessage:     "OIDC login failed",
		defaultContentType: "application/json",
	}
)

// Envelope はバックエンドのレスポンスを正規化したもの。
type Envelope struct {
	// Status はバックエンドのHTTPステータスコード。
	Status int
	// ContentType はクライアントに返すContent-Type。
	ContentType string
	// Header はそのまま返すレスポンスヘッダー。
	Header http.Header
	// Body はJSONレスポンスのボディ。
	Body []byte
	// Stream はバイナリレスポンスのボディ。nilでない場合は呼び出し元がCloseする。
	Stream io.ReadCloser
	// ContentLength はStreamの長さ。不明な場合は-1。
	ContentLength int64
}

// forward はリクエストをバックエンドに1回だけ送信し、レスポンスを正規化する。
// 失敗はすべて*ProxyErrorとして返し、パニックや生のエラーを呼び出し元に漏らさない。
func forward(ctx context.Context, client *httpclient.Client, op operation, req httpclient.Request) (*Envelope, error) {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, errTransport(fmt.Errorf("%s: %w", op.name, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return nil, errTransport(fmt.Errorf("%s: エラーレスポンスの読み取りに失敗: %w", op.name, err))
		}
		return nil, errBackendRejected(resp.StatusCode, backendDetail(resp.Header.Get("Content-Type"), body, op.failureMessage))
	}

	contentType := resp.Header.Get("Content-Type")
	if op.kind == payloadBinary {
		if contentType == "" {
			contentType = op.defaultContentType
		}
		return &Envelope{
			Status:        resp.StatusCode,
			ContentType:   contentType,
			Header:        pickHeaders(resp.Header, passThroughResponseHeaders),
			Stream:        resp.Body,
			ContentLength: resp.ContentLength,
		}, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errTransport(fmt.Errorf("%s: レスポンスの読み取りに失敗: %w", op.name, err))
	}
	if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		return nil, errTransport(fmt.Errorf("%s: バックエンドが不正なJSONを返した (status=%d)", op.name, resp.StatusCode))
	}
	if !isJSON(contentType) {
		contentType = op.defaultContentType
	}

	return &Envelope{
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// backendDetail はバックエンドのエラーボディからdetailを取り出す。
// detailが無い場合や、ボディがJSONでない場合はfallbackを返す。
func backendDetail(contentType string, body []byte, fallback string) any {
	if len(body) == 0 || (contentType != "" && !isJSON(contentType)) {
		return fallback
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	raw := bytes.TrimSpace(payload.Detail)
	if len(raw) == 0 || string(raw) == "null" {
		return fallback
	}

	var message string
	if err := json.Unmarshal(raw, &message); err == nil {
		if message == "" {
			return fallback
		}
		return message
	}
	// 検証エラーの一覧など、文字列以外のdetailはそのまま返す
	return json.RawMessage(raw)
}

// isJSON はContent-TypeがJSONを表すかを判定する。
func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := contenttype.NewMediaType(contentType)
	return mediaType.Matches(jsonMediaType)
}

// pickHeaders はheaderから指定されたキーだけを取り出す。
func pickHeaders(header http.Header, keys []string) http.Header {
	picked := make(http.Header, len(keys))
	for _, key := range keys {
		if values := header.Values(key); len(values) > 0 {
			picked[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
	return picked
}

// newBackendRequest は受信リクエストからバックエンドへ転送するリクエストを組み立てる。
// ボディは上限付きで読み込み、バイト列をそのまま転送する。
func (s *Server) newBackendRequest(c *gin.Context, path string) (httpclient.Request, error) {
	req := httpclient.Request{
		Method:   c.Request.Method,
		Path:     path,
		RawQuery: c.Request.URL.RawQuery,
		Header:   pickHeaders(c.Request.Header, forwardedRequestHeaders),
	}

	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return req, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, errBodyTooLarge(err)
		}
		return req, errTransport(fmt.Errorf("リクエストボディの読み取りに失敗: %w", err))
	}
	if len(body) > 0 {
		req.Body = bytes.NewReader(body)
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	return req, nil
}

// requestContext はリクエストIDを伝播するバックエンド呼び出し用のコンテキストを返す。
// クライアントが切断するとキャンセルされ、送信中のバックエンド呼び出しも中断される。
func requestContext(c *gin.Context) context.Context {
	return httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
}

// writeEnvelope は正規化したレスポンスをクライアントに書き込む。
func writeEnvelope(c *gin.Context, env *Envelope) {
	for key, values := range env.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}

	if env.Stream != nil {
		defer env.Stream.Close()
		c.DataFromReader(env.Status, env.ContentLength, env.ContentType, env.Stream, nil)
		return
	}
	if len(env.Body) == 0 {
		c.Status(env.Status)
		return
	}
	c.Data(env.Status, env.ContentType, env.Body)
}

// writeError は失敗を {"detail": ...} 形式のレスポンスに変換する。
// 内部的な原因はログにのみ出力し、クライアントには返さない。
func writeError(c *gin.Context, err error) {
	var pe *ProxyError
	if !errors.As(err, &pe) {
		pe = errTransport(err)
	}

	switch pe.Kind {
	case KindTransportFailure:
		if errors.Is(pe.Err, context.Canceled) {
			log.Printf("[Proxy] クライアント切断によりバックエンド呼び出しを中断: path=%s request_id=%s", c.Request.URL.Path, middleware.GetRequestID(c))
		} else {
			log.Printf("[Proxy] バックエンドとの通信に失敗: path=%s request_id=%s error=%v", c.Request.URL.Path, middleware.GetRequestID(c), pe.Err)
		}
	case KindRequestRejected:
		log.Printf("[Proxy] リクエストを拒否: path=%s request_id=%s error=%v", c.Request.URL.Path, middleware.GetRequestID(c), pe.Err)
	}

	body := gin.H{"detail": pe.Detail}
	if pe.Reason != "" {
		body["reason"] = pe.Reason
	}
	c.AbortWithStatusJSON(pe.Status, body)
}
