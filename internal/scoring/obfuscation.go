package scoring

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-player/internal/model"
)

// DefaultSecret is the static 16 byte key the quiz backend uses to obfuscate
// correct-option keys. It ships inside every client, so anyone holding the
// client can decode every answer key. This is obfuscation, not confidentiality.
const DefaultSecret = "jon-snow-is-here"

// saltedPrefix marks OpenSSL-style payloads. The salt is ignored because the
// key is used directly rather than derived from a passphrase.
var saltedPrefix = []byte("Salted__")

// ErrKeyDecode is returned when an obfuscated token cannot be turned back into
// a plain option key.
var ErrKeyDecode = errors.New("correct key could not be decoded")

// Codec reverses (and produces) obfuscated correct-option tokens.
// The transform is AES-128 in ECB mode with PKCS#7 padding, base64 encoded.
type Codec struct {
	secret []byte
}

// NewCodec builds a Codec for secret, which must be 16, 24 or 32 bytes.
func NewCodec(secret string) (*Codec, error) {
	if _, err := aes.NewCipher([]byte(secret)); err != nil {
		return nil, fmt.Errorf("obfuscation secret: %w", err)
	}
	return &Codec{secret: []byte(secret)}, nil
}

// DefaultCodec uses DefaultSecret.
func DefaultCodec() *Codec {
	return &Codec{secret: []byte(DefaultSecret)}
}

// Encode obfuscates a plain option key.
func (c *Codec) Encode(key model.OptionKey) (string, error) {
	if !model.IsOptionKey(string(key)) {
		return "", fmt.Errorf("encode %q: not an option key", key)
	}
	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	src := pkcs7Pad([]byte(key), bs)
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += bs {
		block.Encrypt(dst[i:i+bs], src[i:i+bs])
	}
	return base64.StdEncoding.EncodeToString(dst), nil
}

// Decode recovers the plain option key from token. Every failure wraps
// ErrKeyDecode; it never panics on malformed input.
func (c *Codec) Decode(token string) (model.OptionKey, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrKeyDecode, err)
	}
	if bytes.HasPrefix(raw, saltedPrefix) {
		if len(raw) < 16 {
			return "", fmt.Errorf("%w: truncated salt header", ErrKeyDecode)
		}
		raw = raw[16:]
	}

	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyDecode, err)
	}
	bs := block.BlockSize()
	if len(raw) == 0 || len(raw)%bs != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrKeyDecode, len(raw))
	}

	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += bs {
		block.Decrypt(out[i:i+bs], raw[i:i+bs])
	}
	plain, err := pkcs7Unpad(out, bs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyDecode, err)
	}
	if !model.IsOptionKey(string(plain)) {
		return "", fmt.Errorf("%w: decoded value is not an option key", ErrKeyDecode)
	}
	return model.OptionKey(plain), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
