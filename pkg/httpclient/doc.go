// Package httpclient はgatewayからバックエンドAPIへのHTTP通信を行うクライアントを提供する。
//
// セッショントークンに束縛したクライアントは、すべての送信リクエストに
// Authorization: Bearer ヘッダーを自動で付与する。レスポンスは解釈せず、
// ステータス・ヘッダー・ボディをそのまま呼び出し元に返す。
package httpclient
