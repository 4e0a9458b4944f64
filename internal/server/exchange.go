package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/identity"
	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/msgid"
	"github.com/semp-project/semp/internal/transport"
)

// Exchange routes messages. A payload between two local users is stored
// directly; anything else is signed with the server key and forwarded to
// the recipient's home server.
type Exchange struct {
	LocalHost string
	ServerKey ed25519.PrivateKey
	Store     Store
	Trust     *TrustGateway
	Client    *http.Client
	Endpoint  transport.EndpointResolver
}

func NewExchange(localHost string, serverKey ed25519.PrivateKey, store Store, trust *TrustGateway) *Exchange {
	return &Exchange{
		LocalHost: localHost,
		ServerKey: serverKey,
		Store:     store,
		Trust:     trust,
		Client:    http.DefaultClient,
		Endpoint:  transport.DefaultEndpoint,
	}
}

// Send accepts a payload from an authenticated local user and delivers it,
// either into local storage or over the wire.
func (e *Exchange) Send(ctx context.Context, payload models.ExchangePayload) error {
	from, err := identity.Resolve(payload.From)
	if err != nil {
		return err
	}
	to, err := identity.Resolve(payload.To)
	if err != nil {
		return err
	}

	if to.Host == e.LocalHost && from.Host == e.LocalHost {
		if err := e.checkRecipient(ctx, to.Name, payload.From, from.Host); err != nil {
			return err
		}
		return e.storePayload(ctx, payload)
	}

	// The recipient's discovery document is checked first: a peer that is
	// down, speaks another protocol or bans this host fails before any
	// payload leaves.
	if _, err := e.Trust.FetchServerTrust(ctx, to.Host); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := transport.NewRemoteRequest(ctx, http.MethodPost,
		e.Endpoint(to.Host)+transport.DiscoveryPath, body, e.LocalHost, to.Host, e.ServerKey)
	if err != nil {
		return err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %s returned %d", ErrExchangeFailed, to.Host, resp.StatusCode)
	}
	slog.Info("message forwarded", "to_host", to.Host)
	return nil
}

// Receive handles a payload forwarded by another server. The sender's
// payload signature is verified against the key the sender's home server
// vouches for, so a compromised relay cannot forge messages.
func (e *Exchange) Receive(ctx context.Context, payload models.ExchangePayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	from, err := identity.Resolve(payload.From)
	if err != nil {
		return err
	}
	to, err := identity.Resolve(payload.To)
	if err != nil {
		return err
	}
	if to.Host != e.LocalHost {
		return fmt.Errorf("%w: %s is not served here", ErrInvalidIdentity, payload.To)
	}
	if err := e.checkRecipient(ctx, to.Name, payload.From, from.Host); err != nil {
		return err
	}

	trust, err := e.Trust.FetchUserTrust(ctx, from, payload.To)
	if err != nil {
		return err
	}

	content, err := payload.ContentBytes()
	if err != nil {
		return err
	}
	msg := crypto.PayloadSigningString(payload.From, payload.To, payload.Timestamp,
		crypto.ContentHash(content), payload.Nonce)
	if err := crypto.VerifyHex(ed25519.PublicKey(trust.PublicKey), msg, payload.Sign); err != nil {
		return err
	}

	return e.storePayload(ctx, payload)
}

// checkRecipient confirms the local recipient exists and does not block
// the sender's address or host.
func (e *Exchange) checkRecipient(ctx context.Context, name, fromAddr, fromHost string) error {
	recipient, err := e.Store.GetUser(ctx, name)
	if err != nil {
		return err
	}
	if slices.Contains(recipient.BanHosts, fromHost) || slices.Contains(recipient.BanUsers, fromAddr) {
		return &Error{http.StatusForbidden, "forbidden", "recipient refuses messages from this sender"}
	}
	return nil
}

func (e *Exchange) storePayload(ctx context.Context, payload models.ExchangePayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	content, err := payload.ContentBytes()
	if err != nil {
		return err
	}
	timestamp, err := crypto.ParseDate(payload.Timestamp)
	if err != nil {
		return invalidFormat("bad timestamp")
	}

	id, err := msgid.Generate()
	if err != nil {
		return err
	}
	return e.Store.StoreMessage(ctx, models.Message{
		ID:        id,
		From:      payload.From,
		To:        payload.To,
		Timestamp: timestamp,
		Content:   content,
	})
}
