// Package middleware はgatewayのGinルーターで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、Cookie認証を前提としたCORS設定、
// リクエストIDの採番など、すべてのルートに共通して適用するミドルウェアを含む。
package middleware
