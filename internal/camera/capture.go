package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// V4L2Capturer はシェルコマンドを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
	log        logrus.FieldLogger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int, log logrus.FieldLogger) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		log:        log.WithField("device", devicePath),
	}
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト配列として返す
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	// ffmpegを使って1フレームをJPEGとしてキャプチャ
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// TestCapture はデバイステスト用の簡単なキャプチャ機能
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	// タイムアウト付きでテストキャプチャ
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrameAsJPEG(testCtx)
	return err
}

// StartStream は連続キャプチャ用のffmpegプロセスを起動する
// ctx がキャンセルされるとプロセスは終了し、frames はクローズされる
func (c *V4L2Capturer) StartStream(ctx context.Context) (<-chan []byte, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	// stderrはデバッグログに流す
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.log.Debug(scanner.Text())
		}
	}()

	frames := make(chan []byte, 2)

	go func() {
		defer close(frames)
		defer func() {
			// コンテキストキャンセル時にもエラーになるため無視する
			_ = cmd.Wait()
		}()

		if err := pumpJPEGFrames(ctx, stdout, frames); err != nil {
			c.log.WithError(err).Warn("フレーム読み取りエラー")
		}
	}()

	return frames, nil
}

// pumpJPEGFrames はMJPEGバイト列をJPEG単位に分割して送信する
// 受信側が追いつかない場合は古いフレームを捨てる
func pumpJPEGFrames(ctx context.Context, r io.Reader, frames chan []byte) error {
	buffer := make([]byte, 64*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])

			for _, frame := range splitJPEGFrames(&pending) {
				if !sendLatest(ctx, frames, frame) {
					return nil
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// splitJPEGFrames はバッファから完全なJPEGフレームを取り出す
// 不完全な末尾はバッファに残す
func splitJPEGFrames(buf *bytes.Buffer) [][]byte {
	var frames [][]byte
	data := buf.Bytes()

	for {
		// JPEGの開始マーカー（FF D8）を探す
		startIdx := bytes.Index(data, jpegSOI)
		if startIdx == -1 {
			// 開始マーカーが無いデータは捨てる（末尾の0xFFだけは次の読み込みに備えて残す）
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				data = data[len(data)-1:]
			} else {
				data = nil
			}
			break
		}

		// JPEGの終了マーカー（FF D9）を探す
		endIdx := bytes.Index(data[startIdx+2:], jpegEOI)
		if endIdx == -1 {
			data = data[startIdx:]
			break
		}

		end := startIdx + 2 + endIdx + 2
		frame := make([]byte, end-startIdx)
		copy(frame, data[startIdx:end])
		frames = append(frames, frame)

		data = data[end:]
	}

	rest := make([]byte, len(data))
	copy(rest, data)
	buf.Reset()
	buf.Write(rest)

	return frames
}

// sendLatest はフレームを送信する。チャンネルがフルの場合は古いフレームを破棄する
func sendLatest(ctx context.Context, frames chan []byte, frame []byte) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case frames <- frame:
			return true
		default:
		}

		select {
		case <-frames:
		default:
		}
	}
}
