package capture

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bearlytools/bitcodec/errors"
)

// Compressor is a compression algorithm for capture files.
type Compressor interface {
	// Compress compresses data.
	Compress(data []byte) ([]byte, error)
	// Decompress decompresses data.
	Decompress(data []byte) ([]byte, error)
	// Ext is the file extension, with the dot, that selects the Compressor.
	Ext() string
}

var (
	registry   = map[string]Compressor{}
	registryMu sync.RWMutex
)

// Register adds a Compressor to the registry, replacing any with the same Ext(). Thread-safe.
func Register(c Compressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(c.Ext())] = c
}

// Get returns the Compressor for ext, or nil if not found.
func Get(ext string) Compressor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[strings.ToLower(ext)]
}

// Decompress returns data decompressed by the Compressor registered for the extension of name.
// If none is registered, data is returned unchanged.
func Decompress(name string, data []byte) ([]byte, error) {
	c := Get(path.Ext(name))
	if c == nil {
		return data, nil
	}
	out, err := c.Decompress(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", name)
	}
	return out, nil
}

func init() {
	Register(&Gzip{})
	Register(&Snappy{})
	Register(&Zstd{})
}

// Gzip implements Compressor for .gz files.
type Gzip struct {
	// Level is the compression level. If 0, defaults to gzip.DefaultCompression.
	Level int
}

// Ext implements Compressor.Ext().
func (g *Gzip) Ext() string {
	return ".gz"
}

// Compress compresses data using gzip.
func (g *Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses gzip data.
func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Zstd implements Compressor for .zst files.
type Zstd struct {
	// Level is the compression level. If 0, defaults to zstd.SpeedDefault.
	Level zstd.EncoderLevel
}

// Ext implements Compressor.Ext().
func (z *Zstd) Ext() string {
	return ".zst"
}

// Compress compresses data using Zstandard.
func (z *Zstd) Compress(data []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses Zstandard data.
func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Snappy implements Compressor for .sz files, which hold one snappy block.
type Snappy struct{}

// Ext implements Compressor.Ext().
func (s *Snappy) Ext() string {
	return ".sz"
}

// Compress compresses data using Snappy.
func (s *Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decompresses Snappy data.
func (s *Snappy) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
