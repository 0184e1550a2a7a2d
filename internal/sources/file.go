package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-docchat-backend/internal/blob"
)

// ErrBinaryContent is returned for files that do not decode to text.
var ErrBinaryContent = errors.New("file is not text")

// BlobFiles reads uploaded files from a blob store and decodes them to
// NFC-normalised UTF-8. UTF-16 input is recognised by its byte order mark.
type BlobFiles struct {
	Store    blob.Store
	MaxBytes int64
}

// FetchFile implements FileFetcher.
func (b *BlobFiles) FetchFile(ctx context.Context, key string) (string, error) {
	rc, err := b.Store.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var r io.Reader = rc
	if b.MaxBytes > 0 {
		r = io.LimitReader(rc, b.MaxBytes)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return DecodeText(raw)
}

// DecodeText strips a BOM, converts UTF-16 to UTF-8, replaces invalid
// sequences and applies NFC normalisation. Content with NUL bytes after
// decoding is rejected as binary.
func DecodeText(raw []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	t := transform.Chain(dec, norm.NFC)
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", ErrBinaryContent
	}
	s := string(out)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s, nil
}
