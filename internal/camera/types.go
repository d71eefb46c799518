package camera

import (
	"context"
	"errors"
)

var (
	// ErrNoActiveStream は停止対象のストリームが無いことを表す
	ErrNoActiveStream = errors.New("アクティブなストリームがありません")
	// ErrNoDevice はカメラデバイスが見つからないことを表す
	ErrNoDevice = errors.New("カメラデバイスが見つかりません")
	// ErrDeviceUnavailable はデバイスが利用できないことを表す
	ErrDeviceUnavailable = errors.New("デバイスが利用できません")
)

// StreamState はカメラストリームの状態を表す
type StreamState int

const (
	StateInvalid      StreamState = iota // 一度も開始されていない
	StateNotStreaming                    // 明示的に停止された
	StateStreaming                       // ストリーミング中
)

// String は状態の文字列表現を返す
func (s StreamState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateNotStreaming:
		return "not_streaming"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// MarshalText はJSON出力用に状態を文字列化する
func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Track はストリームを構成する1本のトラック
type Track interface {
	Kind() string
	Label() string
	Stop()
}

// Stream は取得済みのカメラストリームを表す不透明なハンドル
type Stream interface {
	ID() string
	Tracks() []Track
	// Frames はJPEGフレームを流すチャンネルを返す
	// ストリームが終了するとクローズされる
	Frames() <-chan []byte
}

// Acquirer はカメラデバイスからストリームを取得する
type Acquirer interface {
	RequestVideoStream(ctx context.Context) (Stream, error)
}

// Sink はストリームを表示ソースとして束縛する先
type Sink interface {
	Bind(stream Stream)
	Clear()
}

// Clearer は処理サーフェスを空にできるもの
type Clearer interface {
	Clear()
}

// Notifier はユーザーへのエラー通知を担う
type Notifier interface {
	NotifyError(err error)
}

// NotifierFunc は関数をNotifierとして使うためのアダプタ
type NotifierFunc func(err error)

// NotifyError はfを呼び出す
func (f NotifierFunc) NotifyError(err error) {
	f(err)
}

// Dispatcher はコールバックをセッションのイベントループ上で実行する
// Post はブロックしない
type Dispatcher interface {
	Post(fn func())
}

// DispatcherFunc は関数をDispatcherとして使うためのアダプタ
type DispatcherFunc func(fn func())

// Post はfを呼び出す
func (f DispatcherFunc) Post(fn func()) {
	f(fn)
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       // デバイスパス
	Name        string       // デバイス名
	Driver      string       // ドライバー名
	Resolutions []Resolution // サポートされる解像度
	Formats     []string     // サポートされるフォーマット
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// AcquirerConfig はAcquirer作成時の設定
type AcquirerConfig struct {
	Device string // デバイスパス（空の場合は自動検出）
	Width  int
	Height int
	FPS    int
}
