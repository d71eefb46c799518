// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、撮影セッションをHTTP APIとして公開し、
// 操作画面（HTML）を配信します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - 開始/停止/撮影ボタンとフィルター入力に対応するAPI
//   - 処理済みプレビューのMJPEG配信
//   - 状態変化とエラー通知のWebSocket配信
//   - 埋め込み操作画面の配信
//
// 実装:
//   - ルーティングはginを使用
//   - WebSocketはgorilla/websocketを使用
//   - セッションへの操作は全てsession.Sessionを経由する
package server
