// Package middleware はGatewayのGinエンジンで使用する共通ミドルウェアを提供する。
//
// リクエストIDの採番、構造化アクセスログ、パニックリカバリ、
// CORS設定など、すべてのリクエストに共通して適用するミドルウェアを含む。
package middleware
