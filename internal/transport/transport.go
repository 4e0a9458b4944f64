// Package transport holds the wire-level constants shared by the server,
// the exchange coordinator and the client: header names, the discovery
// path, endpoint resolution and signed-request construction.
package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/semp-project/semp/internal/crypto"
)

// Header names for authenticated calls. The signature travels in
// authorization as hex; remote calls additionally carry origin.
const (
	HeaderAuthorization = "authorization"
	HeaderDate          = "date"
	HeaderContentHash   = "content-hash"
	HeaderNonce         = "x-semp-nonce"
	HeaderOrigin        = "origin"
)

const (
	// DiscoveryPath is the server's well-known endpoint.
	DiscoveryPath = "/~"
	// DefaultServerPort is the default port the server listens on.
	DefaultServerPort = ":9000"
	// DefaultServerURL is the default URL for the server.
	DefaultServerURL = "http://localhost:9000"
)

// EndpointResolver maps a federation hostname to a base URL. The default is
// plain https; tests substitute httptest addresses.
type EndpointResolver func(host string) string

// DefaultEndpoint resolves a host to its https base URL.
func DefaultEndpoint(host string) string {
	return "https://" + host
}

// NewLocalRequest builds a client-to-home-server request signed with the
// user's key over the context-1 canonical string.
func NewLocalRequest(ctx context.Context, method, url string, body []byte, priv ed25519.PrivateKey) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	date := crypto.CanonicalDate(time.Now())
	hash := crypto.ContentHash(body)
	nonce := uuid.NewString()

	req.Header.Set("content-type", "application/json")
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderContentHash, hash)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderAuthorization,
		crypto.SignHex(priv, crypto.LocalSigningString(method, date, hash, nonce)))
	return req, nil
}

// NewRemoteRequest builds a server-to-server exchange request signed with
// the origin server's key over the context-2 canonical string.
func NewRemoteRequest(ctx context.Context, method, url string, body []byte, originHost, targetHost string, priv ed25519.PrivateKey) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	date := crypto.CanonicalDate(time.Now())
	hash := crypto.ContentHash(body)
	nonce := uuid.NewString()

	req.Header.Set("content-type", "application/json")
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderContentHash, hash)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderOrigin, "https://"+originHost)
	req.Header.Set(HeaderAuthorization,
		crypto.SignHex(priv, crypto.RemoteSigningString(originHost, targetHost, date, hash, nonce)))
	return req, nil
}
