package server

import (
	"crypto/ed25519"
	"net/http"
	"net/url"
	"time"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/transport"
)

// DefaultMaxSkew bounds how far a signed date may sit from server time,
// in either direction.
const DefaultMaxSkew = 10 * time.Second

// Guard authenticates requests. Local requests are signed by a registered
// user's key; remote requests by the origin server's key, fetched fresh
// from its discovery document.
//
// Within the skew window a signature could be replayed; the nonce is bound
// into the signature so TLS-stripped proxies cannot reuse it across
// requests with different nonces, but no nonce ledger is kept.
type Guard struct {
	LocalHost string
	Store     Store
	Trust     *TrustGateway
	MaxSkew   time.Duration
}

func (g *Guard) maxSkew() time.Duration {
	if g.MaxSkew > 0 {
		return g.MaxSkew
	}
	return DefaultMaxSkew
}

// checkDate parses the signed date and enforces the freshness window.
// A missing or malformed date reads as a missing credential.
func (g *Guard) checkDate(dateHeader string) (time.Time, error) {
	date, err := crypto.ParseDate(dateHeader)
	if err != nil {
		return time.Time{}, ErrForbidden
	}
	skew := time.Since(date)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.maxSkew() {
		return time.Time{}, ErrSignatureExpired
	}
	return date, nil
}

// AuthorizeLocal verifies a request signed by the named local user. When
// override is non-nil it is used instead of the stored key; registration
// uses this, since the user does not exist yet.
func (g *Guard) AuthorizeLocal(r *http.Request, name string, override ed25519.PublicKey) error {
	sig := r.Header.Get(transport.HeaderAuthorization)
	dateHeader := r.Header.Get(transport.HeaderDate)
	contentHash := r.Header.Get(transport.HeaderContentHash)
	nonce := r.Header.Get(transport.HeaderNonce)
	if sig == "" || dateHeader == "" || contentHash == "" || nonce == "" {
		return ErrForbidden
	}

	date, err := g.checkDate(dateHeader)
	if err != nil {
		return err
	}

	key := override
	if key == nil {
		user, err := g.Store.GetUser(r.Context(), name)
		if err != nil {
			return err
		}
		key = ed25519.PublicKey(user.PublicKey)
	}

	msg := crypto.LocalSigningString(r.Method, crypto.CanonicalDate(date), contentHash, nonce)
	return crypto.VerifyHex(key, msg, sig)
}

// AuthorizeRemote verifies a server-to-server request signed by the origin
// server's key. Returns the origin hostname on success.
func (g *Guard) AuthorizeRemote(r *http.Request) (string, error) {
	sig := r.Header.Get(transport.HeaderAuthorization)
	dateHeader := r.Header.Get(transport.HeaderDate)
	contentHash := r.Header.Get(transport.HeaderContentHash)
	nonce := r.Header.Get(transport.HeaderNonce)
	origin := r.Header.Get(transport.HeaderOrigin)
	if sig == "" || dateHeader == "" || contentHash == "" || nonce == "" || origin == "" {
		return "", ErrForbidden
	}

	date, err := g.checkDate(dateHeader)
	if err != nil {
		return "", err
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Hostname() == "" {
		return "", ErrForbidden
	}
	originHost := originURL.Hostname()

	trust, err := g.Trust.FetchServerTrust(r.Context(), originHost)
	if err != nil {
		return "", err
	}

	msg := crypto.RemoteSigningString(originHost, g.LocalHost, crypto.CanonicalDate(date), contentHash, nonce)
	if err := crypto.VerifyHex(ed25519.PublicKey(trust.PublicKey), msg, sig); err != nil {
		return "", err
	}
	return originHost, nil
}
