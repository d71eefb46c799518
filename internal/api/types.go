// Package api はHTTP APIのリクエスト・レスポンス型とルーティングを定義する
package api

import (
	"time"
)

// HealthResponseStatus はヘルスチェックの状態
type HealthResponseStatus string

// HealthResponseStatus の定数定義
const (
	Healthy HealthResponseStatus = "healthy"
)

// StreamState はカメラストリームの状態
type StreamState string

// StreamState の定数定義
const (
	Invalid      StreamState = "invalid"
	NotStreaming StreamState = "not_streaming"
	Streaming    StreamState = "streaming"
)

// SnapshotFormat はスナップショットの取得形式
type SnapshotFormat string

// SnapshotFormat の定数定義
const (
	FormatJPEG    SnapshotFormat = "jpeg"
	FormatDataURL SnapshotFormat = "dataurl"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SurfaceInfo は処理サーフェスのサイズ
type SurfaceInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GalleryInfo はギャラリーの概要
type GalleryInfo struct {
	Cursor int `json:"cursor"`
	Photos int `json:"photos"`
	Size   int `json:"size"`
}

// Notification はユーザーに通知されたエラー
type Notification struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	State          StreamState    `json:"state"`
	StreamId       *string        `json:"stream_id,omitempty"`
	Device         *string        `json:"device,omitempty"`
	Driver         string         `json:"driver"`
	Surface        SurfaceInfo    `json:"surface"`
	Gallery        GalleryInfo    `json:"gallery"`
	RenderedFrames int            `json:"rendered_frames"`
	LoopPending    bool           `json:"loop_pending"`
	PreviewClients int            `json:"preview_clients"`
	Notifications  []Notification `json:"notifications"`
	StartedAt      time.Time      `json:"started_at"`
	Timestamp      time.Time      `json:"timestamp"`
}

// StreamResponse はストリーム操作のレスポンス
type StreamResponse struct {
	State     StreamState `json:"state"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChannelRange は1チャンネル分のクランプ範囲
type ChannelRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FilterSettings はカラークランプ設定
type FilterSettings struct {
	Red   ChannelRange `json:"red"`
	Green ChannelRange `json:"green"`
	Blue  ChannelRange `json:"blue"`
}

// SetBoundRequest はUI入力1つ分の値
type SetBoundRequest struct {
	Value *int `json:"value"`
}

// SnapshotInfo はスナップショットのメタ情報
type SnapshotInfo struct {
	Slot       int       `json:"slot"`
	Id         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int       `json:"size"`
	Url        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`
}

// GallerySlot はギャラリーの1スロット
type GallerySlot struct {
	Index    int           `json:"index"`
	Filled   bool          `json:"filled"`
	Snapshot *SnapshotInfo `json:"snapshot,omitempty"`
}

// GalleryResponse はギャラリー一覧のレスポンス
type GalleryResponse struct {
	Cursor int           `json:"cursor"`
	Size   int           `json:"size"`
	Slots  []GallerySlot `json:"slots"`
}

// PhotoResponse は撮影結果のレスポンス
type PhotoResponse struct {
	Slot     int          `json:"slot"`
	Cursor   int          `json:"cursor"`
	Snapshot SnapshotInfo `json:"snapshot"`
}

// GetGallerySnapshotParams はスナップショット取得のクエリパラメータ
type GetGallerySnapshotParams struct {
	// Format は取得形式。省略時は jpeg
	Format *SnapshotFormat `form:"format,omitempty" json:"format,omitempty"`
}
