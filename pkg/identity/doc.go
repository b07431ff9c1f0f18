// Package identity はGatewayが消費する呼び出し元の識別情報と、その検証者を提供する。
//
// Gatewayはトークンの発行を行わない。Bearerトークンの検証は
// 認証サービス（RemoteVerifier）または共有鍵によるJWT検証（JWTVerifier）に委譲する。
package identity
