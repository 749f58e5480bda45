package decode_test

import (
	"testing"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDecode_JSON(t *testing.T) {
	d := decode.New()

	v, err := d.Decode(decode.EncodingJSON, []byte(`{"channel":"output","count":3}`))
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "output", m["channel"])
	assert.Equal(t, int64(3), m["count"])
}

func TestDecode_Msgpack(t *testing.T) {
	d := decode.New()

	data, err := msgpack.Marshal(map[string]any{"tokens": 42, "model": "sonnet"})
	require.NoError(t, err)

	v, err := d.Decode(decode.EncodingMsgpack, data)
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), m["tokens"])
	assert.Equal(t, "sonnet", m["model"])
}

func TestDecode_JSONAndMsgpackAgree(t *testing.T) {
	// Structural diffing depends on the same logical value decoding
	// identically from either encoding.
	d := decode.New()

	logical := map[string]any{
		"messages": []any{map[string]any{"role": "user", "tokens": 7}},
		"step":     2,
	}

	mp, err := msgpack.Marshal(logical)
	require.NoError(t, err)
	fromMsgpack, err := d.Decode(decode.EncodingMsgpack, mp)
	require.NoError(t, err)

	fromJSON, err := d.Decode(decode.EncodingJSON,
		[]byte(`{"messages":[{"role":"user","tokens":7}],"step":2}`))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromMsgpack)
}

func TestDecode_Raw(t *testing.T) {
	d := decode.New()

	data := []byte{0x01, 0x02, 0x03}
	v, err := d.Decode(decode.EncodingRaw, data)
	require.NoError(t, err)

	out, ok := v.([]byte)
	require.True(t, ok)
	assert.Equal(t, data, out)

	// Decoded value must not alias the input buffer.
	data[0] = 0xFF
	assert.Equal(t, byte(0x01), out[0])
}

func TestDecode_EmptyData(t *testing.T) {
	d := decode.New()

	v, err := d.Decode(decode.EncodingJSON, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecode_UnknownEncoding(t *testing.T) {
	d := decode.New()

	_, err := d.Decode("pickle", []byte("anything"))
	require.Error(t, err)

	var decodeErr *decode.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "pickle", decodeErr.Encoding)
	assert.Contains(t, err.Error(), "pickle")
}

func TestDecode_CorruptPayload(t *testing.T) {
	d := decode.New()

	_, err := d.Decode(decode.EncodingJSON, []byte("{not json"))
	require.Error(t, err)

	var decodeErr *decode.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, decode.EncodingJSON, decodeErr.Encoding)
	assert.Error(t, decodeErr.Unwrap())
}

func TestDecode_Supports(t *testing.T) {
	d := decode.New()

	assert.True(t, d.Supports(decode.EncodingJSON))
	assert.True(t, d.Supports(decode.EncodingMsgpack))
	assert.True(t, d.Supports(decode.EncodingRaw))
	assert.False(t, d.Supports("pickle"))
}

func TestCache_MemoizesByKey(t *testing.T) {
	cache := decode.NewCache(decode.New())
	key := decode.BlobKey{Channel: "output", Version: "1", Hash: "abc"}

	v1, err := cache.Decode(key, decode.EncodingJSON, []byte(`{"a":1}`))
	require.NoError(t, err)

	// Same key returns the cached value even if bytes differ; identity is
	// content-addressed upstream.
	v2, err := cache.Decode(key, decode.EncodingJSON, []byte(`{"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_CachesErrors(t *testing.T) {
	cache := decode.NewCache(decode.New())
	key := decode.BlobKey{Channel: "log", Version: "2", Hash: "def"}

	_, err1 := cache.Decode(key, decode.EncodingJSON, []byte("{corrupt"))
	require.Error(t, err1)

	_, err2 := cache.Decode(key, decode.EncodingJSON, []byte("{corrupt"))
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, cache.Len())
}
