// Package health はバックエンドサービスの健全性判定を提供する。
//
// 判定結果は複数のGatewayプロセスで共有するキャッシュ（Redis）に、
// 結果ごとに異なるTTLで保存される。サーキットブレーカーは
// 失敗したサービスへのプローブをクールダウン期間中抑制し、
// クールダウン経過後はちょうど1回だけ試行プローブを許可する。
package health
