package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/models"
)

// signPayload builds a payload the way a client would.
func signPayload(t *testing.T, from, to string, content []byte, pair *crypto.IdentityKeyPair) models.ExchangePayload {
	t.Helper()
	payload := models.ExchangePayload{
		From:      from,
		To:        to,
		Timestamp: crypto.CanonicalDate(time.Now()),
		Content:   hex.EncodeToString(content),
		Nonce:     "1f2e3d4c-0000-4000-8000-000000000001",
	}
	msg := crypto.PayloadSigningString(payload.From, payload.To, payload.Timestamp,
		crypto.ContentHash(content), payload.Nonce)
	payload.Sign = crypto.SignHex(pair.Private, msg)
	return payload
}

func TestExchangeSendLocal(t *testing.T) {
	ctx := context.Background()
	pair, _ := crypto.GenerateIdentityKeyPair()
	store := newTestFileStore(t)
	store.CreateUser(ctx, models.UserRecord{Name: "0b0b0b0b", PublicKey: make(models.HexBytes, 32)})

	var calls atomic.Int32
	wire := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer wire.Close()

	ex := NewExchange("local.example", pair.Private, store, nil)
	ex.Endpoint = func(string) string { return wire.URL }

	payload := signPayload(t, "@a11ce000.local.example", "@0b0b0b0b.local.example", []byte("hi"), pair)
	if err := ex.Send(ctx, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("local delivery hit the wire %d times", calls.Load())
	}

	got, err := store.GetMessages(ctx, "@0b0b0b0b.local.example", "", 20)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 1 || string(got[0].Content) != "hi" {
		t.Errorf("stored = %v", got)
	}

	// Local delivery to a user this server has never seen.
	payload = signPayload(t, "@a11ce000.local.example", "@ffffffff.local.example", []byte("hi"), pair)
	if err := ex.Send(ctx, payload); !errors.Is(err, ErrNoUser) {
		t.Errorf("unknown recipient err = %v, want ErrNoUser", err)
	}
}

func TestExchangeSendRemote(t *testing.T) {
	ctx := context.Background()
	pair, _ := crypto.GenerateIdentityKeyPair()
	remotePair, _ := crypto.GenerateIdentityKeyPair()
	store := newTestFileStore(t)

	var calls atomic.Int32
	var received models.ExchangePayload
	mux := http.NewServeMux()
	mux.HandleFunc("GET /~", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ServerStatus{
			Semp:            1,
			ServerPublicKey: models.HexBytes(remotePair.Public),
		})
	})
	mux.HandleFunc("POST /~", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	})
	wire := httptest.NewServer(mux)
	defer wire.Close()

	ex := NewExchange("local.example", pair.Private, store, pinnedGateway("local.example", wire.URL))
	ex.Endpoint = func(string) string { return wire.URL }

	payload := signPayload(t, "@a11ce000.local.example", "@0b0b0b0b.remote.example", []byte("hi"), pair)
	if err := ex.Send(ctx, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("wire calls = %d, want 1", calls.Load())
	}
	if received.To != payload.To || received.Sign != payload.Sign {
		t.Errorf("forwarded payload mangled: %+v", received)
	}

	// Nothing lands in local storage on the forward path.
	got, _ := store.GetMessages(ctx, payload.To, "", 20)
	if len(got) != 0 {
		t.Errorf("forwarded message stored locally: %v", got)
	}
}

func TestExchangeSendRemoteFailure(t *testing.T) {
	ctx := context.Background()
	pair, _ := crypto.GenerateIdentityKeyPair()
	remotePair, _ := crypto.GenerateIdentityKeyPair()
	store := newTestFileStore(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /~", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ServerStatus{
			Semp:            1,
			ServerPublicKey: models.HexBytes(remotePair.Public),
		})
	})
	mux.HandleFunc("POST /~", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	wire := httptest.NewServer(mux)
	defer wire.Close()

	ex := NewExchange("local.example", pair.Private, store, pinnedGateway("local.example", wire.URL))
	ex.Endpoint = func(string) string { return wire.URL }

	payload := signPayload(t, "@a11ce000.local.example", "@0b0b0b0b.remote.example", []byte("hi"), pair)
	if err := ex.Send(ctx, payload); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("err = %v, want ErrExchangeFailed", err)
	}
}

func TestExchangeSendRemoteBanned(t *testing.T) {
	ctx := context.Background()
	pair, _ := crypto.GenerateIdentityKeyPair()
	remotePair, _ := crypto.GenerateIdentityKeyPair()
	store := newTestFileStore(t)

	var posts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /~", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.ServerStatus{
			Semp:            1,
			ServerPublicKey: models.HexBytes(remotePair.Public),
			BanHosts:        []string{"local.example"},
		})
	})
	mux.HandleFunc("POST /~", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	})
	wire := httptest.NewServer(mux)
	defer wire.Close()

	ex := NewExchange("local.example", pair.Private, store, pinnedGateway("local.example", wire.URL))
	ex.Endpoint = func(string) string { return wire.URL }

	payload := signPayload(t, "@a11ce000.local.example", "@0b0b0b0b.remote.example", []byte("hi"), pair)
	if err := ex.Send(ctx, payload); !errors.Is(err, ErrRemoteBanned) {
		t.Errorf("err = %v, want ErrRemoteBanned", err)
	}
	if posts.Load() != 0 {
		t.Errorf("payload left the building despite the ban: %d posts", posts.Load())
	}
}

func TestExchangeReceive(t *testing.T) {
	ctx := context.Background()
	senderPair, _ := crypto.GenerateIdentityKeyPair()
	serverPair, _ := crypto.GenerateIdentityKeyPair()

	// The sender's home server vouches for the sender's key.
	home := fakeRemote(t, models.ServerStatus{
		Semp:            1,
		ServerPublicKey: models.HexBytes(serverPair.Public),
	}, "a11ce000", models.UserRecord{
		Name:      "a11ce000",
		PublicKey: models.HexBytes(senderPair.Public),
	})

	store := newTestFileStore(t)
	store.CreateUser(ctx, models.UserRecord{Name: "0b0b0b0b", PublicKey: make(models.HexBytes, 32)})

	ex := NewExchange("local.example", serverPair.Private, store, pinnedGateway("local.example", home.URL))

	payload := signPayload(t, "@a11ce000.remote.example", "@0b0b0b0b.local.example", []byte("over the wire"), senderPair)
	if err := ex.Receive(ctx, payload); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	got, _ := store.GetMessages(ctx, payload.To, "", 20)
	if len(got) != 1 || string(got[0].Content) != "over the wire" {
		t.Errorf("stored = %v", got)
	}

	// A payload addressed to another host is refused.
	astray := signPayload(t, "@a11ce000.remote.example", "@0b0b0b0b.elsewhere.example", []byte("x"), senderPair)
	if err := ex.Receive(ctx, astray); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("wrong host err = %v, want ErrInvalidIdentity", err)
	}

	// A signature from a key the home server does not vouch for is refused.
	rogue, _ := crypto.GenerateIdentityKeyPair()
	forged := signPayload(t, "@a11ce000.remote.example", "@0b0b0b0b.local.example", []byte("x"), rogue)
	if err := ex.Receive(ctx, forged); !errors.Is(err, crypto.ErrUnverifiedSignature) {
		t.Errorf("forged err = %v, want ErrUnverifiedSignature", err)
	}

	// Unknown local recipient.
	missing := signPayload(t, "@a11ce000.remote.example", "@ffffffff.local.example", []byte("x"), senderPair)
	if err := ex.Receive(ctx, missing); !errors.Is(err, ErrNoUser) {
		t.Errorf("missing recipient err = %v, want ErrNoUser", err)
	}
}
