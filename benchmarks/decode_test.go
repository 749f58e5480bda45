package benchmarks

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/decode"
)

func benchPayload() map[string]any {
	return map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "summarize the thread"},
			map[string]any{"role": "assistant", "content": "three checkpoints, two model calls"},
		},
		"token_usage": map[string]any{"prompt_tokens": 88, "completion_tokens": 31, "total_tokens": 119},
	}
}

// BenchmarkDecodeJSON measures uncached JSON blob decoding.
func BenchmarkDecodeJSON(b *testing.B) {
	d := decode.New()
	data, _ := json.Marshal(benchPayload())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode("json", data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeMsgpack measures uncached msgpack blob decoding.
func BenchmarkDecodeMsgpack(b *testing.B) {
	d := decode.New()
	data, _ := msgpack.Marshal(benchPayload())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode("msgpack", data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeCached measures the cache hit path.
func BenchmarkDecodeCached(b *testing.B) {
	cache := decode.NewCache(decode.New())
	data, _ := json.Marshal(benchPayload())
	key := decode.BlobKey{Channel: "output", Version: "v1", Hash: "h1"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.Decode(key, "json", data); err != nil {
			b.Fatal(err)
		}
	}
}
