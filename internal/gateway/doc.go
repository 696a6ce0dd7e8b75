// Package gateway はブラウザとバックエンドAPIの間に立つ認証付きエッジ層を提供する。
//
// セッションCookieをBearerトークンに変換してバックエンドへリクエストを転送し、
// バックエンドのステータスとエラーをそのままブラウザに返す。OIDCログインでは
// バックエンドのOIDC入口へリダイレクトし、ログイン後の遷移先を短命のCookieで保持する。
// gatewayはセッションストアを持たず、状態はすべてブラウザのCookieにある。
package gateway
