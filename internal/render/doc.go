// Package render は処理サーフェスへの描画ループを提供する
//
// ループは1回のTickで以下を順に実行する:
//   - 最新の映像フレームをサーフェスにコピーする
//   - カラークランプを適用する
//   - ストリーミング中であれば次のリフレッシュで自分自身を再スケジュールする
//
// スケジューラーは注入されるため、テストでは ManualScheduler で1フレームずつ進められる。
package render
