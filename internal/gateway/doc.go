// Package gateway はストアフロントAPI Gatewayの組み立てとHTTPサーバーを提供する。
//
// 設定の読み込み、ルーティングテーブル、ヘルスキャッシュ、サーキットブレーカー、
// 識別情報の解決、リクエスト転送の各コンポーネントを構築して結び付ける。
// 外部からアクセス可能な唯一の入口であり、信頼境界として機能する。
// 内部サービスが信頼する X-User-ID / X-User-Roles ヘッダーを設定できるのはGatewayだけである。
package gateway
