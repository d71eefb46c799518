// Package camera カメラストリームの取得と解放を担う
//
// # 責務
// - カメラデバイスの検出と利用可能性の確認
// - ストリームの取得・解放とストリーム状態の管理 (Controller)
// - 取得したストリームを表示ソースとして束縛し、最新フレームを保持する (Video)
// - V4L2デバイスからのリアルタイム画像取得
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラの開始・停止をセッションから制御したい
// - カメラが無い環境でテストパターンを流したい
// - テストでカメラをモックに差し替えたい
//
// # 仕様
// - Controller: ストリーム状態 (invalid / not_streaming / streaming) の唯一の更新者
// - 取得は非同期で行い、結果はDispatcher経由でイベントループ上に戻す
// - 取得失敗はNotifierでユーザーに通知し、状態は変更しない。自動リトライはしない
// - ストリームが無い状態での停止は ErrNoActiveStream を返すだけの no-op
// - V4L2 Capturer: ffmpeg経由での画像キャプチャ
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
