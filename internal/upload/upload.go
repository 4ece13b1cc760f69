// Package upload は記事用画像のアップロード検証と保存を提供する。
package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/hitoshi/cybershield/internal/metrics"
	"github.com/hitoshi/cybershield/internal/model"
)

// DefaultMaxBytes はアップロード画像の最大サイズ（2 MiB）。
const DefaultMaxBytes = 2 << 20

// Sink はアップロード済み画像の保存先。
type Sink interface {
	// Put はnameで画像を保存し、公開URLを返す。
	Put(ctx context.Context, name, contentType string, body []byte) (string, error)
}

// Recorder はアップロード結果を記録する。
type Recorder interface {
	RecordUpload(result string, size int64)
}

// File はmultipartで受け取った画像ファイル。
type File struct {
	Filename    string
	ContentType string // クライアントが申告したContent-Type
	Body        io.Reader
}

// Result は保存した画像の情報。
type Result struct {
	URL         string
	Name        string
	ContentType string
	Size        int64
	Width       int
	Height      int
}

// Service は画像を検証してSinkに保存する。
type Service struct {
	sink     Sink
	maxBytes int64
	recorder Recorder
	now      func() time.Time
	random   func() (uint64, error)
}

// NewService はServiceを生成する。maxBytesが0以下の場合はDefaultMaxBytesを使用する。
func NewService(sink Sink, maxBytes int64, recorder Recorder) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		sink:     sink,
		maxBytes: maxBytes,
		recorder: recorder,
		now:      time.Now,
		random:   randomUint64,
	}
}

// MaxBytes は受け付ける画像の最大サイズを返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload は画像を検証し、<unix millis>-<random base36>.<ext> の名前で保存する。
// 申告されたContent-Type、先頭バイトの判定、画像ヘッダーのデコードのいずれかで
// ラスター画像と判定できない場合はUPLOAD_REJECTEDを返す。
func (s *Service) Upload(ctx context.Context, f File) (*Result, error) {
	data, format, cfg, err := s.validate(f)
	if err != nil {
		s.record(metrics.UploadRejected, 0)
		return nil, err
	}

	suffix, err := s.random()
	if err != nil {
		s.record(metrics.UploadFailed, 0)
		return nil, model.NewInternalError("Upload failed", err)
	}
	name := fmt.Sprintf("%d-%s.%s", s.now().UnixMilli(), strconv.FormatUint(suffix, 36), extensionFor(format))
	contentType := "image/" + format

	url, err := s.sink.Put(ctx, name, contentType, data)
	if err != nil {
		s.record(metrics.UploadFailed, 0)
		return nil, model.NewInternalError("Upload failed", err)
	}

	s.record(metrics.UploadAccepted, int64(len(data)))
	slog.Info("image uploaded",
		slog.String("name", name),
		slog.Int("size", len(data)),
		slog.String("format", format),
	)
	return &Result{
		URL:         url,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

func (s *Service) validate(f File) ([]byte, string, image.Config, error) {
	var none image.Config
	if f.Body == nil {
		return nil, "", none, model.NewUploadRejectedError("No image file provided")
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		return nil, "", none, model.NewUploadRejectedError("Only image files are allowed")
	}

	data, err := io.ReadAll(io.LimitReader(f.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", none, model.NewUploadRejectedError("Upload error: " + err.Error())
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", none, model.NewUploadRejectedError("Upload error: File too large")
	}
	if len(data) == 0 {
		return nil, "", none, model.NewUploadRejectedError("No image file provided")
	}

	// SVGなどテキスト系のimage/*は先頭バイト判定で除外される
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		return nil, "", none, model.NewUploadRejectedError("Only image files are allowed")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", none, model.NewUploadRejectedError("Image type not supported")
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, "", none, model.NewUploadRejectedError("Image has zero size")
	}
	return data, format, cfg, nil
}

func (s *Service) record(result string, size int64) {
	if s.recorder != nil {
		s.recorder.RecordUpload(result, size)
	}
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func randomUint64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Join(errors.New("failed to read random bytes"), err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
