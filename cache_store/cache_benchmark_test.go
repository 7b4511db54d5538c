package cache_store

import (
	"crypto/md5"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/zeebo/xxh3"
)

// BenchmarkCacheKeyGeneration compares key hashing on random paths
func BenchmarkCacheKeyGeneration(b *testing.B) {
	filePaths := make([]string, 1000)
	charset := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789/_-."
	for i := range filePaths {
		var sb strings.Builder
		length := rand.Intn(100) + 20
		for j := 0; j < length; j++ {
			sb.WriteByte(charset[rand.Intn(len(charset))])
		}
		filePaths[i] = sb.String()
	}

	b.Run("MD5", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			hash := md5.Sum([]byte(filePaths[i%1000]))
			_ = fmt.Sprintf("%x.cache", hash)
		}
	})

	b.Run("XXH3", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = generateCacheKey(filePaths[i%1000])
		}
	})
}

// BenchmarkCodecs compares the two encodings on a realistic metadata blob
func BenchmarkCodecs(b *testing.B) {
	env := envelope[string, FileMetadataEntry]{Version: envelopeVersion, Entries: map[string]FileMetadataEntry{}}
	now := time.Now()
	for i := 0; i < 2000; i++ {
		p := fmt.Sprintf("/src/project/pkg%d/file%d.go", i%40, i)
		env.Entries[p] = FileMetadataEntry{Path: p, Language: "Go", Size: int64(i * 31), LastModified: now, CachedAt: now}
	}

	for _, codec := range []Codec{BinaryCodec{}, YAMLCodec{}} {
		b.Run(codec.Name(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				data, err := codec.Encode(env)
				if err != nil {
					b.Fatal(err)
				}
				var out envelope[string, FileMetadataEntry]
				if err := DecodeAny(data, &out); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func TestGenerateCacheKey_Consistency(t *testing.T) {
	name := "file_metadata"
	first := generateCacheKey(name)
	for i := 0; i < 100; i++ {
		if got := generateCacheKey(name); got != first {
			t.Errorf("cache key inconsistency: %s != %s", got, first)
		}
	}
	if !strings.HasPrefix(first, name+"-") || !strings.HasSuffix(first, ".cache") {
		t.Errorf("unexpected cache key shape: %s", first)
	}
	if fmt.Sprintf("%s-%016x.cache", name, xxh3.HashString(name)) != first {
		t.Errorf("cache key does not use xxh3")
	}
}
