// Package codec encodes and decodes HTTP bodies as JSON or CBOR.
//
// JSON is the default for both directions. CBOR is used when a request
// declares Content-Type: application/cbor, and for responses when the
// client lists application/cbor in Accept before any JSON type.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// ErrUnsupportedMediaType is returned for request content types that no
// codec handles.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Codec converts between Go values and one wire format.
type Codec interface {
	ContentType() string
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// encMode uses Core Deterministic Encoding so equal values give equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

type cborCodec struct{}

func (cborCodec) ContentType() string { return ContentTypeCBOR }

func (cborCodec) Encode(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

func (cborCodec) Decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}

// ForContentType picks the codec for a request body. An empty content type
// is read as JSON.
func ForContentType(contentType string) (Codec, error) {
	if strings.TrimSpace(contentType) == "" {
		return JSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	switch mediaType {
	case ContentTypeJSON, "text/json":
		return JSON, nil
	case ContentTypeCBOR:
		return CBOR, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
}

// Negotiate picks the response codec from an Accept header. The first
// listed type that a codec serves wins; anything else falls back to JSON.
func Negotiate(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok && strings.TrimLeft(q, "0.") == "" {
			continue
		}
		switch mediaType {
		case ContentTypeCBOR:
			return CBOR
		case ContentTypeJSON, "application/*", "*/*":
			return JSON
		}
	}
	return JSON
}
