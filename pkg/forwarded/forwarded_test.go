package forwarded

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestIsSecure はIsSecure関数を検証する。
func TestIsSecure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []string
		tls     bool
		want    bool
	}{
		{name: "ヘッダーもTLSも無い場合はfalse", want: false},
		{name: "httpsヘッダーの場合はtrue", headers: []string{"https"}, want: true},
		{name: "大文字と空白を含んでもhttpsと判定する", headers: []string{"  HTTPS "}, want: true},
		{name: "httpヘッダーの場合はfalse", headers: []string{"http"}, want: false},
		{name: "カンマ区切りは先頭の値が優先される", headers: []string{"http,https"}, want: false},
		{name: "先頭がhttpsのカンマ区切りはtrue", headers: []string{"https, http"}, want: true},
		{name: "先頭が空のセグメントはfalse", headers: []string{",https"}, want: false},
		{name: "空のヘッダー値はfalse", headers: []string{""}, want: false},
		{name: "想定外の値はfalse", headers: []string{"wss"}, want: false},
		{name: "ヘッダーが無くTLS接続の場合はtrue", tls: true, want: true},
		{name: "ヘッダーがhttpならTLS接続でもfalse", headers: []string{"http"}, tls: true, want: false},
		{name: "複数行のヘッダーは最初の行を使う", headers: []string{"http", "https"}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for _, h := range tt.headers {
				req.Header.Add(HeaderProto, h)
			}
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}

			if got := IsSecure(req); got != tt.want {
				t.Errorf("IsSecure() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("絶対URLのhttpsスキームはtrue", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "https://books.example.com/", nil)
		req.TLS = nil
		if !IsSecure(req) {
			t.Error("IsSecure() = false, want true")
		}
	})
}

// TestOrigin はOrigin関数を検証する。
func TestOrigin(t *testing.T) {
	t.Parallel()

	t.Run("プロキシ配下ではhttpsオリジンを返す", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/auth/oidc/login", nil)
		req.Host = "books.example.com"
		req.Header.Set(HeaderProto, "https")

		if got := Origin(req); got != "https://books.example.com" {
			t.Errorf("Origin() = %q, want %q", got, "https://books.example.com")
		}
	})

	t.Run("直接アクセスではhttpオリジンを返す", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/auth/oidc/login", nil)
		req.Host = "localhost:8080"

		if got := Origin(req); got != "http://localhost:8080" {
			t.Errorf("Origin() = %q, want %q", got, "http://localhost:8080")
		}
	})
}
