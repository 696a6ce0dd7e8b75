// Package session はブラウザが保持するCookieだけでセッションを継続させる。
//
// gatewayはサーバー側にセッションストアを持たない。バックエンドが発行した
// 不透明なセッショントークンと、OIDCログイン往復中のみ有効な
// ログイン後遷移先パスの2種類のCookieを、正しいセキュリティ属性で読み書きする。
// Cookieが欠落・不正な場合はエラーにせず、既定値に縮退する。
package session
