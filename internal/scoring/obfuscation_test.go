package scoring

import (
	"errors"
	"testing"

	"github.com/stemsi/exstem-player/internal/model"
	"pgregory.net/rapid"
)

func TestDecodeKnownTokens(t *testing.T) {
	tests := []struct {
		token string
		want  model.OptionKey
	}{
		{"gi8fKDGiG1A5pov8oJjrZw==", model.Opt1},
		{"31qFetY7fW5ooRxMQsAI6w==", model.Opt2},
		{"F9zmi+W0t6rkKbLn7gWoYQ==", model.Opt3},
		{"JjXtXpqDy7lb8LsKSsXwDg==", model.Opt4},
		// OpenSSL salted envelope around the opt3 ciphertext.
		{"U2FsdGVkX18BAgMEBQYHCBfc5ovltLeq5Cmy5+4FqGE=", model.Opt3},
	}

	codec := DefaultCodec()
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			got, err := codec.Decode(tc.token)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeMatchesKnownToken(t *testing.T) {
	got, err := DefaultCodec().Encode(model.Opt3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != "F9zmi+W0t6rkKbLn7gWoYQ==" {
		t.Fatalf("unexpected token %q", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	codec := DefaultCodec()
	for _, token := range []string{
		"",
		"not base64 at all!",
		"AAAA",                     // 3 bytes, not a block
		"AAAAAAAAAAAAAAAAAAAAAA==", // one zero block, bad padding
		"U2FsdGVkX18=",             // salted header only
	} {
		if _, err := codec.Decode(token); !errors.Is(err, ErrKeyDecode) {
			t.Fatalf("token %q: expected ErrKeyDecode, got %v", token, err)
		}
	}
}

func TestDecodeWithWrongSecretFails(t *testing.T) {
	other, err := NewCodec("0123456789abcdef")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Decode("F9zmi+W0t6rkKbLn7gWoYQ=="); !errors.Is(err, ErrKeyDecode) {
		t.Fatalf("expected ErrKeyDecode, got %v", err)
	}
}

func TestNewCodecRejectsBadSecretLength(t *testing.T) {
	if _, err := NewCodec("short"); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.StringMatching(`[a-zA-Z0-9]{16}`).Draw(t, "secret")
		key := rapid.SampledFrom(model.OptionKeys[:]).Draw(t, "key")

		codec, err := NewCodec(secret)
		if err != nil {
			t.Fatalf("new codec: %v", err)
		}
		token, err := codec.Encode(key)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := codec.Decode(token)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != key {
			t.Fatalf("round trip: got %q, want %q", got, key)
		}
	})
}
