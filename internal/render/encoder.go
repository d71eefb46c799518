package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
)

// DataURLPrefix はJPEGのデータURLの接頭辞
const DataURLPrefix = "data:image/jpeg;base64,"

// Encoded はエンコード済みの画像
type Encoded struct {
	DataURL string
	JPEG    []byte
}

// Encoder はサーフェスを画像表現にエンコードする
type Encoder interface {
	Encode(img image.Image) (Encoded, error)
}

// JPEGEncoder はJPEGのデータURLを生成するEncoder
type JPEGEncoder struct {
	quality int
}

// NewJPEGEncoder は新しいJPEGEncoderを作成する
// 品質が範囲外の場合は 92 を使う
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 || quality > 100 {
		quality = 92
	}
	return &JPEGEncoder{quality: quality}
}

// Encode は画像をJPEGにエンコードする
func (e *JPEGEncoder) Encode(img image.Image) (Encoded, error) {
	data, err := e.EncodeJPEG(img)
	if err != nil {
		return Encoded{}, err
	}

	return Encoded{
		DataURL: DataURLPrefix + base64.StdEncoding.EncodeToString(data),
		JPEG:    data,
	}, nil
}

// EncodeJPEG は画像をJPEGバイト列にエンコードする
func (e *JPEGEncoder) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
