package database

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
)

// Document is a JSON object as stored under a single key.
type Document map[string]interface{}

// StateStore is a key/value store of JSON documents.
type StateStore interface {
	// Read returns the document stored under key, or an empty document if there is none.
	Read(ctx *batchcontext.Context, key string) (Document, error)
	// Write stores doc under key. If merge is true, doc is deep merged into the existing document;
	// otherwise it replaces it.
	Write(ctx *batchcontext.Context, key string, doc Document, merge bool) error
}

// Merge deep merges src into dst and returns dst. Nested objects are merged recursively,
// arrays are concatenated and any other value in src overrides the one in dst.
func Merge(dst, src Document) Document {
	if dst == nil {
		dst = Document{}
	}
	for k, srcValue := range src {
		dst[k] = mergeValue(dst[k], srcValue)
	}
	return dst
}

func mergeValue(dst, src interface{}) interface{} {
	switch s := src.(type) {
	case map[string]interface{}:
		if d, ok := asObject(dst); ok {
			return map[string]interface{}(Merge(d, s))
		}
	case Document:
		if d, ok := asObject(dst); ok {
			return map[string]interface{}(Merge(d, s))
		}
	case []interface{}:
		if d, ok := dst.([]interface{}); ok {
			merged := make([]interface{}, 0, len(d)+len(s))
			merged = append(merged, d...)
			return append(merged, s...)
		}
	}
	return src
}

func asObject(v interface{}) (Document, bool) {
	switch o := v.(type) {
	case map[string]interface{}:
		return o, true
	case Document:
		return o, true
	default:
		return nil, false
	}
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	bytes, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes, nil
}

func decodeDocument(bytes []byte) (Document, error) {
	doc := Document{}
	if len(bytes) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(bytes, &doc); err != nil {
		return nil, errors.WithStack(err)
	}
	return doc, nil
}

// ToDocument converts any JSON serialisable value into a Document.
func ToDocument(v interface{}) (Document, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decodeDocument(bytes)
}

// FromDocument decodes doc into v, which must be a pointer.
func FromDocument(doc Document, v interface{}) error {
	bytes, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return errors.WithStack(json.Unmarshal(bytes, v))
}
