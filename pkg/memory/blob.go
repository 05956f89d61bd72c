package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

// DefaultChunkSize is the per-item byte threshold above which a blob is
// split. Secure storage on some platforms caps item size around 2KB.
const DefaultChunkSize = 2000

func chunkKey(key string, i int) string { return fmt.Sprintf("%s_chunk_%d", key, i) }
func chunkCountKey(key string) string { return key + "_chunk_count" }

// writeBlob stores value under key, transparently splitting it into
// same-size chunk records plus a chunk-count marker when it exceeds
// chunkSize. Stale chunks from a previous larger write are removed.
func writeBlob(ctx context.Context, kv storage.KV, key, value string, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	prevChunks := 0
	if raw, ok, err := kv.GetItem(ctx, chunkCountKey(key)); err == nil && ok {
		prevChunks, _ = strconv.Atoi(raw)
	}

	if len(value) <= chunkSize {
		if err := kv.SetItem(ctx, key, value); err != nil {
			return err
		}
		if prevChunks > 0 {
			if err := kv.RemoveItem(ctx, chunkCountKey(key)); err != nil {
				return err
			}
			for i := 0; i < prevChunks; i++ {
				if err := kv.RemoveItem(ctx, chunkKey(key, i)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	count := (len(value) + chunkSize - 1) / chunkSize
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := kv.SetItem(ctx, chunkKey(key, i), value[start:end]); err != nil {
			return err
		}
	}
	if err := kv.SetItem(ctx, chunkCountKey(key), strconv.Itoa(count)); err != nil {
		return err
	}
	// The marker is authoritative now; drop the unchunked record.
	if err := kv.RemoveItem(ctx, key); err != nil {
		return err
	}
	for i := count; i < prevChunks; i++ {
		if err := kv.RemoveItem(ctx, chunkKey(key, i)); err != nil {
			return err
		}
	}
	return nil
}

// readBlob reassembles a value written by writeBlob. A chunk-count
// marker with any chunk missing reads as not-found: truncated data
// must never be decoded as if it were complete.
func readBlob(ctx context.Context, kv storage.KV, key string) (string, bool, error) {
	raw, ok, err := kv.GetItem(ctx, chunkCountKey(key))
	if err != nil {
		return "", false, err
	}
	if !ok {
		return kv.GetItem(ctx, key)
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return "", false, nil
	}
	var out []byte
	for i := 0; i < count; i++ {
		part, ok, err := kv.GetItem(ctx, chunkKey(key, i))
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, nil
		}
		out = append(out, part...)
	}
	return string(out), true, nil
}

// removeBlob deletes both the plain record and any chunked form.
func removeBlob(ctx context.Context, kv storage.KV, key string) error {
	count := 0
	if raw, ok, err := kv.GetItem(ctx, chunkCountKey(key)); err == nil && ok {
		count, _ = strconv.Atoi(raw)
	}
	for i := 0; i < count; i++ {
		if err := kv.RemoveItem(ctx, chunkKey(key, i)); err != nil {
			return err
		}
	}
	if err := kv.RemoveItem(ctx, chunkCountKey(key)); err != nil {
		return err
	}
	return kv.RemoveItem(ctx, key)
}
