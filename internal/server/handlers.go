package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"webcamshooter/internal/api"
	"webcamshooter/internal/camera"
	"webcamshooter/internal/config"
	"webcamshooter/internal/filter"
	"webcamshooter/internal/gallery"
	"webcamshooter/internal/session"
)

// ShooterHandler はapi.ServerInterfaceを実装する
type ShooterHandler struct {
	config   *config.Config
	session  *session.Session
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewShooterHandler は新しいShooterHandlerを作成する
func NewShooterHandler(cfg *config.Config, sess *session.Session, log logrus.FieldLogger) *ShooterHandler {
	return &ShooterHandler{
		config:  cfg,
		session: sess,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *ShooterHandler) HealthCheck(c *gin.Context) {
	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *ShooterHandler) GetStatus(c *gin.Context) {
	status, err := h.session.Status(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}

	notifications := make([]api.Notification, 0, len(status.Notifications))
	for _, n := range status.Notifications {
		notifications = append(notifications, api.Notification{Message: n.Message, Time: n.Time})
	}

	response := api.StatusResponse{
		State:  convertStreamState(status.State),
		Driver: h.config.Camera.Driver,
		Surface: api.SurfaceInfo{
			Width:  h.config.Shooter.SurfaceWidth,
			Height: h.config.Shooter.SurfaceHeight,
		},
		Gallery: api.GalleryInfo{
			Cursor: status.Cursor,
			Photos: status.Photos,
			Size:   gallery.Size,
		},
		RenderedFrames: status.Rendered,
		LoopPending:    status.LoopPending,
		PreviewClients: status.PreviewClients,
		Notifications:  notifications,
		StartedAt:      status.StartedAt,
		Timestamp:      time.Now(),
	}
	if status.StreamID != "" {
		response.StreamId = stringPtr(status.StreamID)
	}
	if status.Device != "" {
		response.Device = stringPtr(status.Device)
	}

	c.JSON(http.StatusOK, response)
}

// StartStream はカメラ開始エンドポイントの実装
// 取得結果は待たずに 202 を返し、結果は /ws/events で通知する
func (h *ShooterHandler) StartStream(c *gin.Context) {
	if err := h.session.StartStream(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}

	status, err := h.session.Status(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, api.StreamResponse{
		State:     convertStreamState(status.State),
		Message:   "カメラの開始を要求しました",
		Timestamp: time.Now(),
	})
}

// StopStream はカメラ停止エンドポイントの実装
func (h *ShooterHandler) StopStream(c *gin.Context) {
	err := h.session.StopStream(c.Request.Context())
	if errors.Is(err, camera.ErrNoActiveStream) {
		writeError(c, http.StatusConflict, "no_active_stream", "アクティブなストリームがありません", nil)
		return
	}
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.StreamResponse{
		State:     api.NotStreaming,
		Message:   "カメラを停止しました",
		Timestamp: time.Now(),
	})
}

// TakePhoto は撮影エンドポイントの実装
func (h *ShooterHandler) TakePhoto(c *gin.Context) {
	photo, err := h.session.TakePhoto(c.Request.Context())
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			h.sessionError(c, err)
			return
		}
		writeError(c, http.StatusInternalServerError, "photo_failed", "撮影に失敗しました", err)
		return
	}

	c.JSON(http.StatusCreated, api.PhotoResponse{
		Slot:     photo.Slot,
		Cursor:   (photo.Slot + 1) % gallery.Size,
		Snapshot: convertSnapshot(photo.Slot, photo.Snapshot),
	})
}

// GetFilter はフィルター設定取得エンドポイントの実装
func (h *ShooterHandler) GetFilter(c *gin.Context) {
	current, err := h.session.Filter(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertFilter(current))
}

// ReplaceFilter は6つの値をまとめて設定するエンドポイントの実装
func (h *ShooterHandler) ReplaceFilter(c *gin.Context) {
	var settings api.FilterSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "リクエストボディが不正です", err)
		return
	}

	clamp, err := toClamp(settings)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_filter", "フィルター設定が不正です", err)
		return
	}

	if err := h.session.SetFilter(c.Request.Context(), clamp); err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertFilter(clamp))
}

// SetFilterBound はUI入力1つ分の値を設定するエンドポイントの実装
func (h *ShooterHandler) SetFilterBound(c *gin.Context, channel string, bound string) {
	var req api.SetBoundRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "value を指定してください", err)
		return
	}

	current, err := h.session.SetBound(c.Request.Context(), channel, bound, *req.Value)
	if errors.Is(err, filter.ErrInvalidBound) {
		writeError(c, http.StatusBadRequest, "invalid_filter", "フィルター設定が不正です", err)
		return
	}
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertFilter(current))
}

// GetGallery はギャラリー一覧取得エンドポイントの実装
func (h *ShooterHandler) GetGallery(c *gin.Context) {
	view, err := h.session.Gallery(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}

	slots := make([]api.GallerySlot, 0, len(view.Slots))
	for _, slot := range view.Slots {
		item := api.GallerySlot{
			Index:  slot.Index,
			Filled: slot.Filled(),
		}
		if slot.Filled() {
			info := convertSnapshot(slot.Index, *slot.Snapshot)
			item.Snapshot = &info
		}
		slots = append(slots, item)
	}

	c.JSON(http.StatusOK, api.GalleryResponse{
		Cursor: view.Cursor,
		Size:   gallery.Size,
		Slots:  slots,
	})
}

// GetGallerySnapshot はスナップショット取得エンドポイントの実装
func (h *ShooterHandler) GetGallerySnapshot(c *gin.Context, slot int, params api.GetGallerySnapshotParams) {
	snap, filled, err := h.session.Snapshot(c.Request.Context(), slot)
	if errors.Is(err, gallery.ErrSlotOutOfRange) {
		writeError(c, http.StatusNotFound, "slot_not_found", "指定されたスロットは存在しません", err)
		return
	}
	if err != nil {
		h.sessionError(c, err)
		return
	}
	if !filled {
		writeError(c, http.StatusNotFound, "slot_empty", "スロットに画像がありません", nil)
		return
	}

	format := api.FormatJPEG
	if params.Format != nil {
		format = *params.Format
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", fmt.Sprintf("%q", snap.ID))

	switch format {
	case api.FormatJPEG:
		c.Data(http.StatusOK, "image/jpeg", snap.JPEG)
	case api.FormatDataURL:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(snap.DataURL))
	default:
		writeError(c, http.StatusBadRequest, "invalid_format", "format は jpeg か dataurl を指定してください", nil)
	}
}

// GetPreviewStream は処理済みプレビューのMJPEG配信エンドポイントの実装
func (h *ShooterHandler) GetPreviewStream(c *gin.Context) {
	frames, unsubscribe := h.session.SubscribePreview()
	defer unsubscribe()

	h.streamMJPEG(c, frames)
}

// GetEventsWebSocket はイベント配信WebSocketエンドポイントの実装
func (h *ShooterHandler) GetEventsWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade が既にエラーレスポンスを書き込んでいる
		h.log.WithError(err).Warn("WebSocketのアップグレードに失敗")
		return
	}

	h.streamEvents(c.Request.Context(), conn)
}

// Index は操作画面を返す
func (h *ShooterHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
}

// NotFound は未定義ルートのハンドラ
func (h *ShooterHandler) NotFound(c *gin.Context) {
	writeError(c, http.StatusNotFound, "not_found", "指定されたパスは存在しません", nil)
}

// handleParameterError はパスパラメータの変換エラーを返す
func (h *ShooterHandler) handleParameterError(c *gin.Context, err error, statusCode int) {
	writeError(c, statusCode, "invalid_parameter", "パラメータが不正です", err)
}

// sessionError はセッション操作の失敗を返す
func (h *ShooterHandler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrClosed) {
		writeError(c, http.StatusServiceUnavailable, "session_closed", "セッションは終了しています", err)
		return
	}
	if c.Request.Context().Err() != nil {
		// クライアントが切断済み
		c.Abort()
		return
	}
	writeError(c, http.StatusInternalServerError, "internal_error", "内部エラーが発生しました", err)
}

// ヘルパー関数

// writeError はエラーレスポンスを書き込む
func writeError(c *gin.Context, status int, code, message string, err error) {
	response := api.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err != nil {
		response.Details = stringPtr(err.Error())
	}
	c.AbortWithStatusJSON(status, response)
}

// convertStreamState はストリーム状態を変換する
func convertStreamState(state camera.StreamState) api.StreamState {
	switch state {
	case camera.StateStreaming:
		return api.Streaming
	case camera.StateNotStreaming:
		return api.NotStreaming
	default:
		return api.Invalid
	}
}

// convertFilter はクランプ設定を変換する
func convertFilter(c filter.Clamp) api.FilterSettings {
	return api.FilterSettings{
		Red:   api.ChannelRange{Min: int(c.Red.Min), Max: int(c.Red.Max)},
		Green: api.ChannelRange{Min: int(c.Green.Min), Max: int(c.Green.Max)},
		Blue:  api.ChannelRange{Min: int(c.Blue.Min), Max: int(c.Blue.Max)},
	}
}

// toClamp はリクエストの値をクランプ設定に変換する
func toClamp(s api.FilterSettings) (filter.Clamp, error) {
	clamp := filter.Default()
	ranges := map[filter.Channel]api.ChannelRange{
		filter.Red:   s.Red,
		filter.Green: s.Green,
		filter.Blue:  s.Blue,
	}

	var errs []error
	for channel, r := range ranges {
		errs = append(errs,
			clamp.SetBound(channel, filter.Min, r.Min),
			clamp.SetBound(channel, filter.Max, r.Max),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return filter.Clamp{}, err
	}
	return clamp, nil
}

// convertSnapshot はスナップショットのメタ情報を変換する
func convertSnapshot(slot int, snap gallery.Snapshot) api.SnapshotInfo {
	return api.SnapshotInfo{
		Slot:       slot,
		Id:         snap.ID,
		Width:      snap.Width,
		Height:     snap.Height,
		Size:       len(snap.JPEG),
		Url:        fmt.Sprintf("/api/gallery/%d", slot),
		CapturedAt: snap.CapturedAt,
	}
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
