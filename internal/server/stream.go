package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"webcamshooter/internal/session"
)

const (
	// 書き込み完了を待つ時間
	writeWait = 10 * time.Second

	// pong応答を待つ時間
	pongWait = 60 * time.Second

	// pongWait より短くする
	pingPeriod = (pongWait * 9) / 10

	// クライアントからは制御メッセージしか受け取らない
	maxMessageSize = 4 * 1024
)

// streamMJPEG はMJPEGストリームを配信する
func (h *ShooterHandler) streamMJPEG(c *gin.Context, frames <-chan []byte) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frames:
			if !ok {
				// プレビューが終了したか、配信が追いつかず切断された
				return
			}

			if err := writeMJPEGPart(writer, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGPart はマルチパートの1フレーム分を書き込む
func writeMJPEGPart(w gin.ResponseWriter, frame []byte) error {
	parts := [][]byte{
		[]byte("--frame\r\n"),
		[]byte("Content-Type: image/jpeg\r\n\r\n"),
		frame,
		[]byte("\r\n"),
	}
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// streamEvents はセッションのイベントをWebSocketで配信する
// 書き込みはこのゴルーチンだけが行う
func (h *ShooterHandler) streamEvents(ctx context.Context, conn *websocket.Conn) {
	events, unsubscribe := h.session.SubscribeEvents()
	defer unsubscribe()

	log := h.log.WithField("remote", conn.RemoteAddr().String())
	log.Debug("イベント購読を開始")
	defer log.Debug("イベント購読を終了")

	// 読み込みループが終了したら切断とみなす
	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	// 接続直後に現在の状態を送る
	if status, err := h.session.Status(ctx); err == nil {
		initial := session.Event{
			Type:      session.EventState,
			State:     status.State,
			Timestamp: time.Now(),
		}
		if err := writeJSON(conn, initial); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-done:
			return

		case event, ok := <-events:
			if !ok {
				// セッション終了または配信遅延による切断
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := writeJSON(conn, event); err != nil {
				log.WithError(err).Debug("イベントの送信に失敗")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump はpong応答と切断を検知するために読み込みを続ける
func (h *ShooterHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
