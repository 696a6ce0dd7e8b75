package gateway

import (
	"fmt"
	"net/http"
)

// FailureKind はプロキシ境界で発生する失敗の種類。
type FailureKind int

const (
	// KindUnauthenticated は有効なセッションCookieが無いことを表す。
	KindUnauthenticated FailureKind = iota + 1
	// KindBackendRejected はバックエンドが2xx以外のステータスを返したことを表す。
	KindBackendRejected
	// KindTransportFailure は通信失敗・タイムアウト・不正なレスポンスを表す。
	KindTransportFailure
	// KindRequestRejected はバックエンドへ転送する前にgatewayが受信リクエストを拒否したことを表す。
	KindRequestRejected
)

// String は失敗の種類をログ向けの文字列で返す。
func (k FailureKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindBackendRejected:
		return "backend_rejected"
	case KindTransportFailure:
		return "transport_failure"
	case KindRequestRejected:
		return "request_rejected"
	default:
		return "unknown"
	}
}

// internalErrorDetail はgateway内部の失敗をクライアントに返す際の固定メッセージ。
const internalErrorDetail = "Internal server error"

// ProxyError はプロキシ境界で発生した失敗を表す。
// 例外で呼び出し元に伝播させず、戻り値として返してレスポンスに変換する。
type ProxyError struct {
	// Kind は失敗の種類。
	Kind FailureKind
	// Status はクライアントに返すHTTPステータスコード。
	Status int
	// Detail はクライアントに返すメッセージ。文字列またはバックエンドのJSON値。
	Detail any
	// Reason は機械可読な失敗理由。空の場合はレスポンスに含めない。
	Reason string
	// Err は内部的な原因。ログにのみ出力し、クライアントには返さない。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status=%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (status=%d)", e.Kind, e.Status)
}

// Unwrap は内部的な原因を返す。
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// errUnauthenticated はセッションCookieが無い場合の失敗を生成する。
func errUnauthenticated() *ProxyError {
	return &ProxyError{
		Kind:   KindUnauthenticated,
		Status: http.StatusUnauthorized,
		Detail: "Not authenticated",
		Reason: "session_missing",
	}
}

// errBackendRejected はバックエンドが返したエラーをそのまま伝える失敗を生成する。
func errBackendRejected(status int, detail any) *ProxyError {
	return &ProxyError{
		Kind:   KindBackendRejected,
		Status: status,
		Detail: detail,
	}
}

// errTransport は通信や解析の失敗を固定メッセージの500に畳み込む失敗を生成する。
func errTransport(err error) *ProxyError {
	return &ProxyError{
		Kind:   KindTransportFailure,
		Status: http.StatusInternalServerError,
		Detail: internalErrorDetail,
		Err:    err,
	}
}

// errBodyTooLarge はリクエストボディが上限を超えた場合の失敗を生成する。
func errBodyTooLarge(err error) *ProxyError {
	return &ProxyError{
		Kind:   KindRequestRejected,
		Status: http.StatusRequestEntityTooLarge,
		Detail: "Request body too large",
		Err:    err,
	}
}
