package session

import (
	"net/http"
	"net/url"

	"github.com/nao1215/shelfgate/pkg/forwarded"
)

const (
	// SessionCookieName はセッショントークンを保持するCookie名。
	SessionCookieName = "shelfgate_session"
	// NextCookieName はログイン後遷移先パスを保持するCookie名。
	NextCookieName = "shelfgate_next"
	// NextMaxAge はログイン後遷移先Cookieの有効期間（秒）。
	NextMaxAge = 600
)

// Manager はセッションCookieとログイン後遷移先Cookieを管理する。
// 状態を持たないため、複数のリクエストから同時に使用できる。
type Manager struct {
	// secure はデプロイ環境としてSecure属性を強制するかどうか。
	secure bool
}

// NewManager は新しいCookieマネージャーを生成する。
// secureにはデプロイ環境でSecure属性を常に付与するかを指定する。
func NewManager(secure bool) *Manager {
	return &Manager{secure: secure}
}

// SetSession はセッショントークンをCookieに書き込む。
// Max-Ageは付与せず、トークンの有効期限はバックエンド側で管理する。
func (m *Manager) SetSession(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.sessionSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession はセッションCookieを失効させる。
func (m *Manager) ClearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.sessionSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken はリクエストのCookieからセッショントークンを取り出す。
// Cookieが無い、または値が空の場合はfalseを返す。
func (m *Manager) SessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SetNext はログイン後遷移先パスを短命のCookieに書き込む。
// pathは検証済みであることを前提とせず、書き込み前に再検証する。
// 非ASCII文字や ; " はCookie値に使えないため、パーセントエンコードして格納する。
func (m *Manager) SetNext(w http.ResponseWriter, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     NextCookieName,
		Value:    url.QueryEscape(SafeNextPath(path)),
		Path:     "/",
		MaxAge:   NextMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadAndClearNext はログイン後遷移先パスを読み出し、Cookieを失効させる。
// Cookieが無い、または値が同一オリジンの相対パスでない場合は "/" を返す。
func (m *Manager) ReadAndClearNext(w http.ResponseWriter, r *http.Request) string {
	next := "/"
	if cookie, err := r.Cookie(NextCookieName); err == nil {
		if decoded, err := url.QueryUnescape(cookie.Value); err == nil {
			next = SafeNextPath(decoded)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     NextCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return next
}

// sessionSecure はセッションCookieにSecure属性を付与するかを判定する。
func (m *Manager) sessionSecure(r *http.Request) bool {
	return m.secure || forwarded.IsSecure(r)
}
