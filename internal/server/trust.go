package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/semp-project/semp/internal/identity"
	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

// TrustGateway fetches signing material from remote servers. Every lookup
// goes to the wire; vouched keys are never cached, so a rotated or revoked
// key takes effect on the next exchange.
type TrustGateway struct {
	Client    *http.Client
	LocalHost string
	Endpoint  transport.EndpointResolver
}

func NewTrustGateway(localHost string) *TrustGateway {
	return &TrustGateway{
		Client:    http.DefaultClient,
		LocalHost: localHost,
		Endpoint:  transport.DefaultEndpoint,
	}
}

// FetchServerTrust retrieves a peer's discovery document and returns its
// server key, refusing peers that ban the local host. Any transport or
// schema problem collapses into ErrRemoteUnsupported.
func (g *TrustGateway) FetchServerTrust(ctx context.Context, host string) (models.RemoteServerTrust, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint(host)+transport.DiscoveryPath, nil)
	if err != nil {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: status %d from %s", ErrRemoteUnsupported, resp.StatusCode, host)
	}

	var status models.ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}
	if status.Semp < 1 {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: %s does not announce the protocol", ErrRemoteUnsupported, host)
	}

	// Ban verdicts come before key validation so a banned caller learns
	// the ban, not a schema error.
	if slices.Contains(status.BanHosts, g.LocalHost) {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: %s bans %s", ErrRemoteBanned, host, g.LocalHost)
	}

	if len(status.ServerPublicKey) != ed25519.PublicKeySize {
		return models.RemoteServerTrust{}, fmt.Errorf("%w: bad server key from %s", ErrRemoteUnsupported, host)
	}
	return models.RemoteServerTrust{
		PublicKey: status.ServerPublicKey,
		BanHosts:  status.BanHosts,
	}, nil
}

// FetchUserTrust retrieves a user record from the user's home server.
// asking is the full address of the local user the lookup is on behalf of;
// it is checked against the remote user's personal ban list.
func (g *TrustGateway) FetchUserTrust(ctx context.Context, user identity.Identity, asking string) (models.RemoteUserTrust, error) {
	if _, err := g.FetchServerTrust(ctx, user.Host); err != nil {
		return models.RemoteUserTrust{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint(user.Host)+"/"+user.Name, nil)
	if err != nil {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %s", ErrUserNotFound, user.String())
	}
	if resp.StatusCode != http.StatusOK {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: status %d for %s", ErrRemoteUnsupported, resp.StatusCode, user.String())
	}

	var record models.UserRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %v", ErrRemoteUnsupported, err)
	}

	if slices.Contains(record.BanHosts, g.LocalHost) {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %s bans host %s", ErrRemoteBanned, user.String(), g.LocalHost)
	}
	if asking != "" && slices.Contains(record.BanUsers, asking) {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: %s bans %s", ErrRemoteBanned, user.String(), asking)
	}

	if len(record.PublicKey) != ed25519.PublicKeySize {
		return models.RemoteUserTrust{}, fmt.Errorf("%w: bad user key for %s", ErrRemoteUnsupported, user.String())
	}
	return models.RemoteUserTrust{
		PublicKey: record.PublicKey,
		BanHosts:  record.BanHosts,
		BanUsers:  record.BanUsers,
	}, nil
}
