package cache

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// BrotliSuffix is appended to keys of brotli-compressed values.
const BrotliSuffix = ".br"

const (
	textQuality = 11
	textWindow  = 24
)

// BrotliConverter compresses bytes. Textual content (judged by the logical key's
// extension) uses maximum quality and a large window; everything else the library
// default.
var BrotliConverter = Converter[[]byte]{
	Name:   "brotli",
	Suffix: BrotliSuffix,
	Encode: func(key string, value []byte) ([]byte, error) {
		opts := brotli.WriterOptions{Quality: brotli.DefaultCompression}
		if ct, err := ContentTypeForKey(key); err == nil && strings.HasPrefix(ct.Type, "text/") {
			opts = brotli.WriterOptions{Quality: textQuality, LGWin: textWindow}
		}
		var buf bytes.Buffer
		w := brotli.NewWriterOptions(&buf, opts)
		if _, err := w.Write(value); err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("flush compressor: %w", err)
		}
		return buf.Bytes(), nil
	},
	Decode: func(_ string, data []byte) ([]byte, error) {
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		return out, nil
	},
}

// AsBrotli compresses everything written through it. It must sit directly above
// the backend so BrotliSuffix is the final key suffix backends see.
func AsBrotli(inner Cache[[]byte]) *Converted[[]byte] {
	return Convert(inner, BrotliConverter)
}
