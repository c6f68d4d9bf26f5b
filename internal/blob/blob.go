// Package blob はアバター画像などのバイナリデータの保存先を提供する。
// ローカルディスクとS3互換オブジェクトストレージ（MinIO等）の実装を持つ。
package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/xid"
)

// ErrNotFound は指定キーのオブジェクトが存在しない場合に返される。
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey はキーにパス区切りなど使用できない文字が含まれる場合に返される。
var ErrInvalidKey = errors.New("invalid blob key")

// Object は取得したオブジェクトのメタデータ。
type Object struct {
	ContentType string
	Size        int64
}

// Store はオブジェクトの保存・取得・削除のインターフェース。
type Store interface {
	// Put はrの内容をkeyで保存する。同じキーが存在する場合は上書きする。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get はkeyの内容を返す。呼び出し元はReadCloserを閉じる必要がある。
	// 存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)

	// Delete はkeyのオブジェクトを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewKey は元のファイル名から一意なキーを生成する。形式は "<xid>-<ファイル名>"。
func NewKey(originalName string) string {
	name := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		name = "file"
	}
	return xid.New().String() + "-" + name
}

// ValidKey はキーが単一のパス要素として安全かどうかを返す。
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !unsafeChars.MatchString(key)
}
