// Package seal 负责对象落盘前的最后一步：可选压缩，然后可选加密
//
// 存储格式:
//
//	明文层   [tag(1) | uvarint(原始长度) | 数据]   仅在启用压缩时存在
//	加密层   [nonce(12) | ChaCha20-Poly1305 密文 + tag(16)]
//
// nonce 与 tag 的长度是格式的一部分，改动会导致已有数据无法解密
package seal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = chacha20poly1305.KeySize   // 32
	NonceSize = chacha20poly1305.NonceSize // 12
	TagSize   = chacha20poly1305.Overhead  // 16

	// MaxPlaintextSize 是单个对象编码后的上限，也用来拒绝伪造的解压长度
	MaxPlaintextSize = 64 << 20
)

// ErrDecryption 表示认证失败：密钥错误或数据被篡改
// 用同一个密钥重试不可能成功，调用方不应重试
var ErrDecryption = errors.New("decryption failed")

// ErrCorruptFrame 表示压缩帧无法解析，数据已损坏
var ErrCorruptFrame = errors.New("corrupt compression frame")

// Sealer 在 Seal/Open 之间保持可逆
// 零值不可用，必须通过 New 创建；创建后可并发使用
type Sealer struct {
	aead  cipherAEAD
	codec Compression
}

// cipherAEAD 是 chacha20poly1305 返回值中用到的部分
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New 创建 Sealer；key 为 nil 表示不加密
func New(key []byte, codec Compression) (*Sealer, error) {
	if !codec.valid() {
		return nil, fmt.Errorf("unsupported compression: %d", codec)
	}
	s := &Sealer{codec: codec}
	if key != nil {
		if len(key) != KeySize {
			return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("init cipher: %w", err)
		}
		s.aead = aead
	}
	return s, nil
}

// Plain 返回不压缩不加密的 Sealer
func Plain() *Sealer {
	return &Sealer{codec: CompressionNone}
}

func (s *Sealer) Encrypted() bool { return s.aead != nil }

func (s *Sealer) Compression() Compression { return s.codec }

// Seal 返回可以直接交给后端的字节
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("object of %d bytes exceeds limit of %d", len(plaintext), MaxPlaintextSize)
	}

	// 1. 压缩 (可选)
	framed := plaintext
	if s.codec != CompressionNone {
		framed = compressFrame(s.codec, plaintext)
	}

	// 2. 加密 (可选)
	if s.aead == nil {
		return framed, nil
	}
	out := make([]byte, NonceSize, NonceSize+len(framed)+TagSize)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(out, out[:NonceSize], framed, nil), nil
}

// Open 是 Seal 的逆过程
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	framed := sealed

	// 1. 解密
	if s.aead != nil {
		if len(sealed) < NonceSize+TagSize {
			return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(sealed))
		}
		plain, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		framed = plain
	}

	// 2. 解压
	if s.codec == CompressionNone {
		return framed, nil
	}
	out, err := decompressFrame(framed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}
	return out, nil
}

// ParseKey 解析 64 个十六进制字符的密钥，空字符串表示不加密
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d hex chars, got %d", KeySize*2, len(s))
	}
	return key, nil
}

// GenerateKey 生成一个随机密钥
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
