// Package forwarded はリバースプロキシ配下で元のクライアント接続の属性を判定する。
//
// TLSを終端するロードバランサの背後でgatewayが動作する場合、
// gateway自身が受け取るリクエストは常にHTTPになる。信頼できるプロキシが
// 付与する X-Forwarded-Proto ヘッダーから、ブラウザから見た接続が
// HTTPSであったかを判定する。
package forwarded
