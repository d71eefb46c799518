package camera

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// 登録済みのドライバー名
const (
	DriverV4L2        = "v4l2"
	DriverTestPattern = "testpattern"
)

// AcquirerCreator はAcquirer作成関数の型
type AcquirerCreator func(config AcquirerConfig, log logrus.FieldLogger) (Acquirer, error)

// AcquirerFactory はドライバー名からAcquirerを作成するファクトリー
type AcquirerFactory struct {
	creators map[string]AcquirerCreator
}

// NewAcquirerFactory は標準ドライバーを登録したファクトリーを作成する
func NewAcquirerFactory() *AcquirerFactory {
	factory := &AcquirerFactory{
		creators: make(map[string]AcquirerCreator),
	}

	// USBカメラ (V4L2 + ffmpeg)
	factory.Register(DriverV4L2, func(config AcquirerConfig, log logrus.FieldLogger) (Acquirer, error) {
		return NewFFmpegAcquirer(config, NewLinuxDiscovery(), log), nil
	})

	// テストパターン
	factory.Register(DriverTestPattern, func(config AcquirerConfig, log logrus.FieldLogger) (Acquirer, error) {
		return NewTestPatternAcquirer(config, log), nil
	})

	return factory
}

// Register は作成関数を登録する
func (f *AcquirerFactory) Register(driver string, creator AcquirerCreator) {
	f.creators[driver] = creator
}

// Create はAcquirerを作成する
func (f *AcquirerFactory) Create(driver string, config AcquirerConfig, log logrus.FieldLogger) (Acquirer, error) {
	creator, exists := f.creators[driver]
	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバー: %s", driver)
	}

	return creator(config, log.WithField("driver", driver))
}

// Drivers は登録済みドライバー名をソートして返す
func (f *AcquirerFactory) Drivers() []string {
	drivers := make([]string, 0, len(f.creators))
	for driver := range f.creators {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}
