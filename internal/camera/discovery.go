package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	videoDevicePattern = regexp.MustCompile(`^/dev/video(\d+)$`)
	deviceNumberRe     = regexp.MustCompile(`video(\d+)`)
)

// commandRunner は外部コマンドを実行して標準出力を返す
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	glob func(pattern string) ([]string, error)
	open func(device string) error
	run  commandRunner
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{
		glob: filepath.Glob,
		open: openReadOnly,
		run:  execRunner,
	}
}

func openReadOnly(device string) error {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// ScanDevices はシステム内のカラーカメラデバイスを番号順に返す
// 同じ物理カメラの複数ノードは最も小さい番号だけを残す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := d.glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	seenNames := make(map[string]bool)

	for _, match := range matches {
		// コンテキストのキャンセルをチェック
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		if !d.IsDeviceAvailable(ctx, match) || !d.supportsColor(ctx, match) {
			continue
		}

		name := d.deviceName(ctx, match)
		if name != "" {
			if seenNames[name] {
				continue
			}
			seenNames[name] = true
		}

		devices = append(devices, match)
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが開けるV4L2デバイスかチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !videoDevicePattern.MatchString(device) {
		return false
	}
	return d.open(device) == nil
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	name := d.deviceName(ctx, device)
	if name == "" {
		name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	info := &DeviceInfo{
		Device: device,
		Name:   name,
		Driver: "v4l2",
	}

	if output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext"); err == nil {
		info.Formats, info.Resolutions = parseFormats(string(output))
	}

	return info, nil
}

// deviceName はv4l2-ctlの "Card type" からカメラ名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--info")
	if err != nil {
		return ""
	}

	return parseCardType(string(output))
}

// supportsColor はYUYVかMJPGを扱えるデバイスかを判定する
// グレースケール専用（IRカメラ等）のノードは除外する
func (d *LinuxDiscovery) supportsColor(ctx context.Context, device string) bool {
	output, err := d.run(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	if err != nil {
		return false
	}

	formats, _ := parseFormats(string(output))
	for _, f := range formats {
		if f == "YUYV" || f == "MJPG" {
			return true
		}
	}
	return false
}

// parseCardType は v4l2-ctl --info の出力からカード名を取り出す
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

var (
	formatLineRe = regexp.MustCompile(`\[\d+\]:\s*'(\w+)'`)
	sizeLineRe   = regexp.MustCompile(`Size:\s*Discrete\s*(\d+)x(\d+)`)
)

// parseFormats は v4l2-ctl --list-formats-ext の出力からフォーマットと解像度を取り出す
func parseFormats(output string) ([]string, []Resolution) {
	var formats []string
	var resolutions []Resolution
	seen := make(map[Resolution]bool)

	for _, line := range strings.Split(output, "\n") {
		if m := formatLineRe.FindStringSubmatch(line); m != nil {
			formats = append(formats, m[1])
			continue
		}
		if m := sizeLineRe.FindStringSubmatch(line); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			r := Resolution{Width: w, Height: h}
			if !seen[r] {
				seen[r] = true
				resolutions = append(resolutions, r)
			}
		}
	}

	return formats, resolutions
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberRe.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{
		deviceInfos: make(map[string]*DeviceInfo),
	}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	out := make([]string, len(m.devices))
	copy(out, m.devices)
	return out, nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	_, exists := m.deviceInfos[device]
	return exists
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	// コピーを返す
	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	if _, exists := m.deviceInfos[device]; exists {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device:      device,
		Name:        fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver:      "mock",
		Resolutions: []Resolution{{Width: 640, Height: 480}, {Width: 1280, Height: 720}},
		Formats:     []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
