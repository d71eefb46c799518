// Package session は撮影セッション全体の状態を1つのイベントループで管理する
//
// ストリーム制御、描画ループ、フィルター設定、ギャラリーは全てイベントループ上の
// ゴルーチン1つからのみ変更される。外部からの操作は Do を通してループに送られる。
package session
