package cache

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnknownContentType is returned for keys whose extension has no mapping.
var ErrUnknownContentType = errors.New("unknown content type")

// ContentType is the metadata a remote object store should serve a key with.
type ContentType struct {
	Type     string
	Encoding string
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".json": "application/json",
	".html": "text/html",
	".txt":  "text/plain",
	".csv":  "text/csv",
}

// ContentTypeForKey infers the content type from a key's extension. A trailing
// ".br" sets the brotli encoding and the type is taken from the remaining key.
// Textual types carry an explicit UTF-8 charset.
func ContentTypeForKey(key string) (ContentType, error) {
	var ct ContentType
	if strings.HasSuffix(key, BrotliSuffix) {
		ct.Encoding = "br"
		key = strings.TrimSuffix(key, BrotliSuffix)
	}
	base, ok := extensionTypes[strings.ToLower(path.Ext(key))]
	if !ok {
		return ContentType{}, fmt.Errorf("%w for key %q", ErrUnknownContentType, key)
	}
	if strings.HasPrefix(base, "text/") {
		base += "; charset=utf-8"
	}
	ct.Type = base
	return ct, nil
}
