// Package decode turns serialized checkpoint channel values into typed
// in-memory values.
//
// Every blob in the checkpoint store carries an encoding tag. The decoder
// maps that tag to a deserializer and never guesses: an unknown or corrupt
// encoding produces a *DecodeError naming the encoding, so callers can
// degrade the affected channel instead of failing a whole trace.
//
// Decoding is pure and side-effect free, which makes results safe to cache
// by (channel, version, hash). See Cache.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Supported encoding tags.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
	EncodingRaw     = "bytes"
)

// DecodeError reports an unsupported or corrupt blob encoding.
type DecodeError struct {
	// Encoding is the declared encoding tag of the blob.
	Encoding string

	// Err is the underlying deserializer error, nil for unknown encodings.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s blob: %s", e.Encoding, e.Err)
	}
	return fmt.Sprintf("unsupported blob encoding: %s", e.Encoding)
}

// Unwrap returns the underlying deserializer error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeFunc deserializes raw bytes into a value.
type decodeFunc func(data []byte) (any, error)

// Decoder maps encoding tags to deserializers.
// The zero value is not usable; use New.
type Decoder struct {
	funcs map[string]decodeFunc
}

// New creates a decoder supporting json, msgpack, and raw-bytes encodings.
func New() *Decoder {
	return &Decoder{
		funcs: map[string]decodeFunc{
			EncodingJSON:    decodeJSON,
			EncodingMsgpack: decodeMsgpack,
			EncodingRaw:     decodeRaw,
		},
	}
}

// Decode deserializes data according to its declared encoding.
//
// Empty data decodes to nil for any known encoding. Unknown encodings
// return a *DecodeError with a nil Err; corrupt payloads return a
// *DecodeError wrapping the deserializer failure.
func (d *Decoder) Decode(encoding string, data []byte) (any, error) {
	fn, ok := d.funcs[encoding]
	if !ok {
		return nil, &DecodeError{Encoding: encoding}
	}
	if len(data) == 0 {
		return nil, nil
	}
	v, err := fn(data)
	if err != nil {
		return nil, &DecodeError{Encoding: encoding, Err: err}
	}
	return v, nil
}

// Supports reports whether the encoding tag is known to the decoder.
func (d *Decoder) Supports(encoding string) bool {
	_, ok := d.funcs[encoding]
	return ok
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func decodeMsgpack(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func decodeRaw(data []byte) (any, error) {
	// Copy so the decoded value does not alias the store's buffer.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// normalize converts decoder-specific container and number types into the
// canonical forms used throughout reconstruction: map[string]any, []any,
// float64, and int64. Structural diffing relies on two decodings of the
// same logical value comparing equal, regardless of source encoding.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		// msgpack may produce non-string keys; stringify for uniformity.
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
