package seal

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression 是整个仓库固定的压缩算法
// 它决定 Open 是否需要读取 tag 字节，所以不能对已有仓库修改
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// 帧内的 tag。压缩后不比原文小时存原文，tag 为 frameRaw
const (
	frameRaw byte = iota
	frameZstd
	frameLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

func (c Compression) valid() bool { return c <= CompressionLZ4 }

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// zstd.Encoder 和 zstd.Decoder 可以并发使用，全局复用
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("seal: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPlaintextSize))
	if err != nil {
		panic("seal: zstd decoder initialization failed: " + err.Error())
	}
}

// compressFrame 输出 tag | uvarint(len) | payload
func compressFrame(c Compression, data []byte) []byte {
	var (
		payload []byte
		tag     = frameRaw
	)
	switch c {
	case CompressionZstd:
		if out := zstdEncoder.EncodeAll(data, nil); len(out) < len(data) {
			payload, tag = out, frameZstd
		}
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		// 返回 0 表示不可压缩
		if n, err := lz4.CompressBlock(data, buf, nil); err == nil && n > 0 && n < len(data) {
			payload, tag = buf[:n], frameLZ4
		}
	}
	if tag == frameRaw {
		payload = data
	}

	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	out = append(out, tag)
	out = binary.AppendUvarint(out, uint64(len(data)))
	return append(out, payload...)
}

func decompressFrame(framed []byte) ([]byte, error) {
	if len(framed) < 2 {
		return nil, fmt.Errorf("compressed frame too short (%d bytes)", len(framed))
	}
	tag := framed[0]
	size, n := binary.Uvarint(framed[1:])
	if n <= 0 {
		return nil, fmt.Errorf("compressed frame has invalid length header")
	}
	if size > MaxPlaintextSize {
		return nil, fmt.Errorf("compressed frame claims %d bytes, limit is %d", size, MaxPlaintextSize)
	}
	payload := framed[1+n:]

	switch tag {
	case frameRaw:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("raw frame: size %d does not match header %d", len(payload), size)
		}
		return payload, nil

	case frameZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	case frameLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
