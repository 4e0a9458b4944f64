package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// HexBytes is a byte slice that travels as a lowercase hex string in JSON.
// Keys, hashes and message content are all hex on the wire.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex field: %w", err)
	}
	*h = raw
	return nil
}

// UserRecord is the server's record of a local user. The name is derived
// from the public key at registration and never changes.
type UserRecord struct {
	Name        string     `json:"name"`
	PublicKey   HexBytes   `json:"public_key"`
	DisplayName string     `json:"display_name"`
	BanHosts    []string   `json:"ban_hosts"`
	BanUsers    []string   `json:"ban_users"`
	UntrustedAt *time.Time `json:"untrusted_at,omitempty"`
}

// Message is a stored message. Content is opaque bytes; the server never
// interprets it.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Content   HexBytes  `json:"content"`
}

// ExchangePayload is a message in flight, created and signed by the sending
// user. Timestamp stays a verbatim string because it is part of the signed
// canonical string; content and sign are hex.
type ExchangePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Nonce     string `json:"nonce"`
	Sign      string `json:"sign"`
}

// Validate checks the structural shape of the payload. Identity grammar and
// signature checks happen later in the pipeline.
func (p ExchangePayload) Validate() error {
	if p.From == "" || p.To == "" || p.Nonce == "" {
		return fmt.Errorf("missing required field")
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		return fmt.Errorf("bad timestamp: %w", err)
	}
	if len(p.Content) < 2 || !isHex(p.Content) {
		return fmt.Errorf("content must be hex")
	}
	if len(p.Sign) != 128 || !isHex(p.Sign) {
		return fmt.Errorf("sign must be a 128-hex-character signature")
	}
	return nil
}

// ContentBytes decodes the hex message content.
func (p ExchangePayload) ContentBytes() ([]byte, error) {
	return hex.DecodeString(p.Content)
}

// CreateUserRequest is the body of PUT /~.
type CreateUserRequest struct {
	PublicKey   string `json:"public_key"`
	DisplayName string `json:"display_name"`
}

func (r CreateUserRequest) Validate() error {
	if len(r.PublicKey) != 64 || !isHex(r.PublicKey) {
		return fmt.Errorf("public_key must be 64 hex characters")
	}
	if len(r.DisplayName) < 2 {
		return fmt.Errorf("display_name too short")
	}
	return nil
}

// CreateUserResponse carries the derived user name.
type CreateUserResponse struct {
	Name string `json:"name"`
}

// UpdateUserRequest is the body of PATCH /{name}. Display name and ban
// lists replace the stored values wholesale. Untrusted marks the user
// untrusted; a set marker cannot be cleared again.
type UpdateUserRequest struct {
	DisplayName string   `json:"display_name"`
	BanHosts    []string `json:"ban_hosts"`
	BanUsers    []string `json:"ban_users"`
	Untrusted   bool     `json:"untrusted,omitempty"`
}

func (r UpdateUserRequest) Validate() error {
	if r.DisplayName != "" && len(r.DisplayName) < 2 {
		return fmt.Errorf("display_name too short")
	}
	for _, h := range r.BanHosts {
		if h == "" {
			return fmt.Errorf("empty ban_hosts entry")
		}
	}
	for _, u := range r.BanUsers {
		if u == "" {
			return fmt.Errorf("empty ban_users entry")
		}
	}
	return nil
}

// GetMessagesRequest is the body of POST /{name}. Since is an exclusive id
// cursor; ids sort by creation time.
type GetMessagesRequest struct {
	Since string `json:"since,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (r GetMessagesRequest) Validate() error {
	if r.Limit < 0 || r.Limit > 1000 {
		return fmt.Errorf("limit out of range")
	}
	return nil
}

// DeleteMessagesRequest is the body of DELETE /{name}.
type DeleteMessagesRequest struct {
	IDs []string `json:"ids"`
}

func (r DeleteMessagesRequest) Validate() error {
	if len(r.IDs) == 0 {
		return fmt.Errorf("ids must not be empty")
	}
	for _, id := range r.IDs {
		if id == "" || !isHex(id) {
			return fmt.Errorf("bad message id %q", id)
		}
	}
	return nil
}

// SetBanHostsRequest is the body of PATCH /~, replacing the server-wide
// ban list wholesale.
type SetBanHostsRequest []string

func (r SetBanHostsRequest) Validate() error {
	for _, h := range r {
		if h == "" {
			return fmt.Errorf("empty host entry")
		}
	}
	return nil
}

// ServerStatus is the discovery document served at GET /~.
type ServerStatus struct {
	Semp             int       `json:"semp"`
	ServerPublicKey  HexBytes  `json:"server_public_key"`
	AdminPublicKey   HexBytes  `json:"admin_public_key"`
	ServerAdmin      string    `json:"server_admin"`
	BanHosts         []string  `json:"ban_hosts"`
	Timestamp        time.Time `json:"timestamp"`
	OpenRegistration bool      `json:"openRegistration"`
}

// RemoteServerTrust is a peer server's discovery result: its signing key
// and who it refuses to talk to. Fetched per call, never cached.
type RemoteServerTrust struct {
	PublicKey []byte
	BanHosts  []string
}

// RemoteUserTrust is a remote user's record as vouched by their home server.
type RemoteUserTrust struct {
	PublicKey []byte
	BanHosts  []string
	BanUsers  []string
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
