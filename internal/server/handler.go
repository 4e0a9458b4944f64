package server

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

// userNamePattern matches the derived user names this server hands out and
// keeps path traversal out of the name position.
var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]+$`)

// App carries everything the handler needs.
type App struct {
	Hostname       string
	ServerKey      ed25519.PrivateKey
	AdminName      string
	AdminPublicKey ed25519.PublicKey
	BodyLimit      int64

	Store    Store
	Trust    *TrustGateway
	Exchange *Exchange
	Guard    *Guard
}

// Handler serves the protocol surface: the server document at /~ and the
// per-user resource at /{name}.
type Handler struct {
	app *App
}

func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("access-control-allow-origin", "*")
		w.Header().Set("access-control-allow-methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("access-control-allow-headers", "*")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.ContentLength > h.app.BodyLimit {
		writeError(w, invalidFormat("request body too large"))
		return
	}

	if r.URL.Path == transport.DiscoveryPath {
		h.serveDiscovery(w, r)
		return
	}

	name := r.URL.Path[1:]
	if !userNamePattern.MatchString(name) {
		writeError(w, ErrInvalidIdentity)
		return
	}
	h.serveUser(w, r, name)
}

func (h *Handler) serveDiscovery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleStatus(w, r)
	case http.MethodPatch:
		h.handleSetBanHosts(w, r)
	case http.MethodPut:
		h.handleCreateUser(w, r)
	case http.MethodPost:
		h.handleExchange(w, r)
	default:
		writeError(w, invalidFormat("method not supported"))
	}
}

func (h *Handler) serveUser(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetUser(w, r, name)
	case http.MethodPost:
		h.handleGetMessages(w, r, name)
	case http.MethodPut:
		h.handleSendMessage(w, r, name)
	case http.MethodPatch:
		h.handleUpdateUser(w, r, name)
	case http.MethodDelete:
		h.handleDeleteMessages(w, r, name)
	default:
		writeError(w, invalidFormat("method not supported"))
	}
}

// readBody drains the request body and checks it against the content-hash
// header before any signature work, so the signed hash is known to cover
// the bytes actually received.
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.app.BodyLimit+1))
	if err != nil {
		return nil, invalidFormat("unreadable body")
	}
	if int64(len(body)) > h.app.BodyLimit {
		return nil, invalidFormat("request body too large")
	}

	claimed := r.Header.Get(transport.HeaderContentHash)
	if claimed == "" {
		return nil, ErrForbidden
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != claimed {
		return nil, invalidFormat("content-hash does not match body")
	}
	return body, nil
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.Header().Set("access-control-allow-origin", "*")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	banHosts, err := h.app.Store.GetBanHosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, models.ServerStatus{
		Semp:             1,
		ServerPublicKey:  models.HexBytes(h.app.ServerKey.Public().(ed25519.PublicKey)),
		AdminPublicKey:   models.HexBytes(h.app.AdminPublicKey),
		ServerAdmin:      "@" + h.app.AdminName + "." + h.app.Hostname,
		BanHosts:         banHosts,
		Timestamp:        time.Now().UTC(),
		OpenRegistration: true,
	})
}

func (h *Handler) handleSetBanHosts(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Only the admin key may edit the server ban list.
	if err := h.app.Guard.AuthorizeLocal(r, h.app.AdminName, h.app.AdminPublicKey); err != nil {
		writeError(w, err)
		return
	}

	var req models.SetBanHostsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Store.SetBanHosts(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("ban list replaced", "hosts", len(req))
	respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.CreateUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	key, err := crypto.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		writeError(w, invalidFormat("bad public key"))
		return
	}

	// The registrant proves key possession by signing with the key being
	// registered; the name is derived from the key, never chosen.
	if err := h.app.Guard.AuthorizeLocal(r, "", key); err != nil {
		writeError(w, err)
		return
	}

	sum := sha256.Sum256(key)
	name := hex.EncodeToString(sum[:4])

	err = h.app.Store.CreateUser(r.Context(), models.UserRecord{
		Name:        name,
		PublicKey:   models.HexBytes(key),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("user registered", "name", name)
	respond(w, http.StatusOK, models.CreateUserResponse{Name: name})
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	origin, err := h.app.Guard.AuthorizeRemote(r)
	if err != nil {
		writeError(w, err)
		return
	}
	banned, err := h.app.Store.GetBanHosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if slices.Contains(banned, origin) {
		writeError(w, &Error{http.StatusForbidden, "forbidden", "origin host is banned"})
		return
	}

	var payload models.ExchangePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := h.app.Exchange.Receive(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request, name string) {
	user, err := h.app.Store.GetUser(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request, name string) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Guard.AuthorizeLocal(r, name, nil); err != nil {
		writeError(w, err)
		return
	}

	req := models.GetMessagesRequest{Limit: 20}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, invalidFormat("bad json"))
			return
		}
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	addr := "@" + name + "." + h.app.Hostname
	messages, err := h.app.Store.GetMessages(r.Context(), addr, req.Since, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, messages)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request, name string) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Guard.AuthorizeLocal(r, name, nil); err != nil {
		writeError(w, err)
		return
	}

	var payload models.ExchangePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Exchange.Send(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request, name string) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Guard.AuthorizeLocal(r, name, nil); err != nil {
		writeError(w, err)
		return
	}

	var req models.UpdateUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Store.UpdateUser(r.Context(), name, req); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleDeleteMessages(w http.ResponseWriter, r *http.Request, name string) {
	body, err := h.readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Guard.AuthorizeLocal(r, name, nil); err != nil {
		writeError(w, err)
		return
	}

	var req models.DeleteMessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, invalidFormat("bad json"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	addr := "@" + name + "." + h.app.Hostname
	if err := h.app.Store.DeleteMessages(r.Context(), addr, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
