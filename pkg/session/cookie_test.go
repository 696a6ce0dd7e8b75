package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// cookieAttrs はテストで比較するCookie属性。
type cookieAttrs struct {
	Name     string
	Value    string
	Path     string
	MaxAge   int
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// findCookie はレスポンスから指定名のCookieを取り出す。
func findCookie(t *testing.T, w *httptest.ResponseRecorder, name string) cookieAttrs {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return cookieAttrs{
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				MaxAge:   c.MaxAge,
				HttpOnly: c.HttpOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite,
			}
		}
	}
	t.Fatalf("Cookie %q がレスポンスに含まれていない", name)
	return cookieAttrs{}
}

// TestSetSession はSetSessionメソッドを検証する。
func TestSetSession(t *testing.T) {
	t.Parallel()

	t.Run("HttpOnly・SameSite=Lax・Path=/でMax-Ageなしのセッションを書き込む", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

		m.SetSession(w, r, "tok123")

		want := cookieAttrs{
			Name:     SessionCookieName,
			Value:    "tok123",
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if diff := cmp.Diff(want, findCookie(t, w, SessionCookieName)); diff != "" {
			t.Errorf("セッションCookieが不正 (-want +got):\n%s", diff)
		}
	})

	t.Run("プロキシがhttpsを伝えた場合はSecure属性を付与する", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.Header.Set("X-Forwarded-Proto", "https")

		m.SetSession(w, r, "tok123")

		if !findCookie(t, w, SessionCookieName).Secure {
			t.Error("Secure属性が付与されていない")
		}
	})

	t.Run("デプロイ設定でSecureが強制される場合はHTTPでもSecure属性を付与する", func(t *testing.T) {
		t.Parallel()

		m := NewManager(true)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

		m.SetSession(w, r, "tok123")

		if !findCookie(t, w, SessionCookieName).Secure {
			t.Error("Secure属性が付与されていない")
		}
	})
}

// TestClearSession はClearSessionメソッドを検証する。
func TestClearSession(t *testing.T) {
	t.Parallel()

	m := NewManager(false)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)

	m.ClearSession(w, r)

	got := findCookie(t, w, SessionCookieName)
	if got.Value != "" {
		t.Errorf("Value = %q, want empty", got.Value)
	}
	if got.MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", got.MaxAge)
	}
	if got.Path != "/" {
		t.Errorf("Path = %q, want %q", got.Path, "/")
	}
}

// TestSessionToken はSessionTokenメソッドを検証する。
func TestSessionToken(t *testing.T) {
	t.Parallel()

	m := NewManager(false)

	t.Run("Cookieが存在する場合はトークンを返す", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/auth/settings", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok123"})

		token, ok := m.SessionToken(r)
		if !ok {
			t.Fatal("SessionToken()がfalseを返した")
		}
		if token != "tok123" {
			t.Errorf("token = %q, want %q", token, "tok123")
		}
	})

	t.Run("Cookieが無い場合はfalseを返す", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/auth/settings", nil)
		if _, ok := m.SessionToken(r); ok {
			t.Error("SessionToken()がtrueを返した")
		}
	})

	t.Run("値が空のCookieはセッション無しとして扱う", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/auth/settings", nil)
		r.Header.Set("Cookie", SessionCookieName+"=")
		if _, ok := m.SessionToken(r); ok {
			t.Error("SessionToken()がtrueを返した")
		}
	})
}

// TestNextCookie はログイン後遷移先Cookieの書き込みと読み出しを検証する。
func TestNextCookie(t *testing.T) {
	t.Parallel()

	t.Run("600秒の短命Cookieとして書き込む", func(t *testing.T) {
		t.Parallel()

		m := NewManager(true)
		w := httptest.NewRecorder()

		m.SetNext(w, "/library")

		want := cookieAttrs{
			Name:     NextCookieName,
			Value:    "%2Flibrary",
			Path:     "/",
			MaxAge:   NextMaxAge,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		}
		if diff := cmp.Diff(want, findCookie(t, w, NextCookieName)); diff != "" {
			t.Errorf("遷移先Cookieが不正 (-want +got):\n%s", diff)
		}
	})

	roundTrips := []string{
		"/library",
		"/library?shelf=3",
		"/books/書籍",
		"/search?q=a;b",
		`/q?x="y"`,
		"/search?q=a+b&tag=sci%20fi",
		"/shelves,recent",
	}
	for _, next := range roundTrips {
		next := next
		t.Run("書き込んだ遷移先をそのまま読み出せる "+next, func(t *testing.T) {
			t.Parallel()

			m := NewManager(false)
			w := httptest.NewRecorder()
			m.SetNext(w, next)

			r := httptest.NewRequest(http.MethodGet, "/auth/oidc/callback", nil)
			for _, c := range w.Result().Cookies() {
				r.AddCookie(c)
			}

			w2 := httptest.NewRecorder()
			if got := m.ReadAndClearNext(w2, r); got != next {
				t.Errorf("ReadAndClearNext() = %q, want %q", got, next)
			}

			cleared := findCookie(t, w2, NextCookieName)
			if cleared.MaxAge >= 0 || cleared.Value != "" {
				t.Errorf("遷移先Cookieが失効していない: %+v", cleared)
			}
		})
	}

	t.Run("デコードできない値はルートパスを返す", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/auth/oidc/callback", nil)
		r.AddCookie(&http.Cookie{Name: NextCookieName, Value: "%2Flib%zz"})

		if got := m.ReadAndClearNext(w, r); got != "/" {
			t.Errorf("ReadAndClearNext() = %q, want %q", got, "/")
		}
	})

	t.Run("エンコードされた外部URLはルートパスを返す", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/auth/oidc/callback", nil)
		r.AddCookie(&http.Cookie{Name: NextCookieName, Value: "%2F%2Fevil.example%2F"})

		if got := m.ReadAndClearNext(w, r); got != "/" {
			t.Errorf("ReadAndClearNext() = %q, want %q", got, "/")
		}
	})

	t.Run("Cookieが無い場合はルートパスを返す", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/auth/oidc/callback", nil)

		if got := m.ReadAndClearNext(w, r); got != "/" {
			t.Errorf("ReadAndClearNext() = %q, want %q", got, "/")
		}
	})

	t.Run("外部URLが格納されていた場合はルートパスを返す", func(t *testing.T) {
		t.Parallel()

		m := NewManager(false)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/auth/oidc/callback", nil)
		r.AddCookie(&http.Cookie{Name: NextCookieName, Value: "https://evil.example/"})

		if got := m.ReadAndClearNext(w, r); got != "/" {
			t.Errorf("ReadAndClearNext() = %q, want %q", got, "/")
		}
	})
}

// TestSafeNextPath はSafeNextPath関数を検証する。
func TestSafeNextPath(t *testing.T) {
	t.Parallel()

	accepted := []string{"/", "/library", "/books/12?tab=files", "/shelves#top"}
	rejected := []string{
		"",
		"library",
		"https://evil.example/",
		"//evil.example/path",
		`/\evil.example`,
		"/ok\r\nSet-Cookie: x=y",
		"javascript:alert(1)",
		"/%zz",
	}

	var gotAccepted []string
	for _, p := range accepted {
		gotAccepted = append(gotAccepted, SafeNextPath(p))
	}
	if diff := cmp.Diff(accepted, gotAccepted); diff != "" {
		t.Errorf("相対パスが拒否された (-want +got):\n%s", diff)
	}

	for _, p := range rejected {
		if got := SafeNextPath(p); got != "/" {
			t.Errorf("SafeNextPath(%q) = %q, want %q", p, got, "/")
		}
	}
}
