package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskSink はローカルディスクに画像を保存する。
// 保存先ディレクトリは /uploads/ctf-images/ として静的配信される前提。
type DiskSink struct {
	dir     string
	baseURL string
}

// NewDiskSink はDiskSinkを生成し、保存先ディレクトリを作成する。
// baseURLは公開URLの接頭辞（例: http://localhost:5000/uploads/ctf-images）。
func NewDiskSink(dir, baseURL string) (*DiskSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskSink{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir は保存先ディレクトリを返す。
func (d *DiskSink) Dir() string {
	return d.dir
}

// Put はファイルを新規作成して書き込む。同名ファイルが存在する場合はエラーを返す。
func (d *DiskSink) Put(_ context.Context, name, _ string, body []byte) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name: %q", name)
	}

	path := filepath.Join(d.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return d.baseURL + "/" + name, nil
}

// compile-time interface check
var _ Sink = (*DiskSink)(nil)
