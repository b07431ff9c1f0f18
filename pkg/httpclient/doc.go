// Package httpclient はGatewayからバックエンドサービスへのHTTP通信を行うクライアントを提供する。
//
// 接続タイムアウトと全体タイムアウトを独立に設定したhttp.Clientの生成、
// ヘルスチェック用のPing、識別情報サービスへのJSON取得など、
// Gatewayが行う外向き通信のパターンを統一する。
package httpclient
