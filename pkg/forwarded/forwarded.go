package forwarded

import (
	"net/http"
	"strings"
)

// HeaderProto は信頼できるリバースプロキシが元のスキームを伝えるヘッダー。
const HeaderProto = "X-Forwarded-Proto"

// IsSecure は元のクライアント接続がHTTPSであったかを返す。
// X-Forwarded-Proto が存在する場合は先頭の値だけを見て判定し、
// リクエスト自身のスキームにはフォールバックしない。
// 空の値や想定外の値は安全でない接続として扱う。
func IsSecure(r *http.Request) bool {
	if values := r.Header.Values(HeaderProto); len(values) > 0 {
		first, _, _ := strings.Cut(values[0], ",")
		return strings.ToLower(strings.TrimSpace(first)) == "https"
	}
	if r.TLS != nil {
		return true
	}
	return r.URL != nil && strings.EqualFold(r.URL.Scheme, "https")
}

// Origin はブラウザから見たgatewayのオリジン（scheme://host）を返す。
func Origin(r *http.Request) string {
	scheme := "http"
	if IsSecure(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
