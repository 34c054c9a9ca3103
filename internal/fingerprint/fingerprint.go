// Package fingerprint derives a stable pseudo-identifier for the current
// device/browser from attributes the client can observe.
//
// The value is NOT a credential. Every input is spoofable and the derivation
// is public, so it only deters the same browser from re-attempting a quiz.
// It must never be used for authentication or authorization.
package fingerprint

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// Length is the number of characters kept from the encoded attributes.
const Length = 32

// Environment is the set of observable attributes the fingerprint is built from.
type Environment struct {
	UserAgent    string `json:"user_agent" binding:"required,max=512"`
	Language     string `json:"language" binding:"max=64"`
	ScreenWidth  int    `json:"screen_width" binding:"min=0"`
	ScreenHeight int    `json:"screen_height" binding:"min=0"`
}

// Compute returns the fingerprint for env. It is a pure function: the same
// environment always yields the same string.
func Compute(env Environment) string {
	raw := fmt.Sprintf("%s|%s|%dx%d", env.UserAgent, env.Language, env.ScreenWidth, env.ScreenHeight)
	enc := base64.StdEncoding.EncodeToString([]byte(raw))
	if len(enc) > Length {
		enc = enc[:Length]
	}
	return enc
}

// Local builds an Environment for a terminal session from attributes that
// survive a window resize: host and user stand in for the browser, the
// terminal type and locale complete it. The screen is left at 0x0 because a
// terminal has no fixed resolution. Host and user come first so they stay
// inside the Length cut.
func Local() Environment {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return localEnv(host, os.Getuid(), getenv("TERM", "dumb"), localeFromEnv())
}

func localEnv(host string, uid int, termName, locale string) Environment {
	return Environment{
		UserAgent: fmt.Sprintf("%s:%d exstem-player/%s", host, uid, termName),
		Language:  locale,
	}
}

func localeFromEnv() string {
	for _, k := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(k); v != "" {
			// en_US.UTF-8 -> en-US, matching navigator.language
			v = strings.SplitN(v, ".", 2)[0]
			return strings.ReplaceAll(v, "_", "-")
		}
	}
	return "en-US"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
