package session

import (
	"net/url"
	"strings"
)

// SafeNextPath は遷移先がgatewayと同一オリジンの相対パスである場合のみそのまま返し、
// それ以外は "/" を返す。オープンリダイレクトを防ぐため、
// "//evil.example" のようなスキーム相対URLやバックスラッシュ始まりも拒否する。
func SafeNextPath(raw string) string {
	if raw == "" || raw[0] != '/' {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f || r == '\\' {
			return "/"
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return raw
}
