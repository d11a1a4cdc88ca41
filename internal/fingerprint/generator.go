// Package fingerprint derives the pseudonymous identity token used in place
// of user accounts. The token is a keyed BLAKE2b-256 digest of a handful of
// request attributes and cannot be reversed to them.
package fingerprint

import (
	"encoding/hex"
	"hash"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Unknown replaces any attribute the request did not carry.
const Unknown = "unknown"

// TokenLength is the length of every token returned by Generate.
const TokenLength = blake2b.Size256 * 2

// RequestMetadata is the set of attributes an identity is derived from.
type RequestMetadata struct {
	SourceAddress  string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}

type Generator struct {
	key  []byte
	pool sync.Pool
}

// NewGenerator returns a generator keyed with pepper. The pepper must stay
// fixed for a deployment; changing it resets every client's identity and
// with it every rate limit. An empty pepper yields an unkeyed digest.
// Peppers longer than 64 bytes are compressed to 64 bytes first.
func NewGenerator(pepper string) *Generator {
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}

	g := &Generator{key: key}
	g.pool = sync.Pool{
		New: func() interface{} {
			h, err := blake2b.New256(g.key)
			if err != nil {
				// key length is bounded above, New256 cannot fail
				panic(err)
			}
			return h
		},
	}
	return g
}

// Generate returns the identity token for meta. It never fails: missing
// attributes degrade to a coarser identity.
func (g *Generator) Generate(meta RequestMetadata) string {
	h := g.pool.Get().(hash.Hash)
	defer g.pool.Put(h)
	h.Reset()

	for i, part := range []string{meta.SourceAddress, meta.UserAgent, meta.AcceptLanguage, meta.AcceptEncoding} {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write([]byte(orUnknown(part)))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// FromRequest extracts RequestMetadata from r. The source address is the
// first X-Forwarded-For hop, then X-Real-IP, then the RemoteAddr host.
func FromRequest(r *http.Request) RequestMetadata {
	return RequestMetadata{
		SourceAddress:  sourceAddress(r),
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

func sourceAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unknown
	}
	return s
}
