package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

type completedResponse struct {
	Cart string   `json:"cart"`
	Keys []string `json:"keys"`
}

type storeKey struct {
	scope storage.Scope
	name  string
}

// StatusHandler exposes cart status stores over HTTP. Stores are opened on
// first use and kept for the lifetime of the handler; every read restores
// from storage first so writes made elsewhere are always visible.
type StatusHandler struct {
	username string
	password string
	env      *cartstatus.Env

	mu     sync.Mutex
	stores map[storeKey]*cartstatus.Store
}

// NewStatusHandler creates a new status handler. Basic auth is enforced
// when username is not empty.
func NewStatusHandler(username, password string, env *cartstatus.Env) *StatusHandler {
	return &StatusHandler{
		username: username,
		password: password,
		env:      env,
		stores:   make(map[storeKey]*cartstatus.Store),
	}
}

// Register makes an already opened store available to the handler, so
// requests share it with the rest of the process.
func (h *StatusHandler) Register(scope storage.Scope, store *cartstatus.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stores[storeKey{scope: scope, name: store.Name()}] = store
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Route("/carts/{name}", func(r chi.Router) {
		r.Get("/", h.HandleGetCart)
		r.Delete("/", h.HandleForgetCart)
		r.Get("/items", h.HandleGetItem)
		r.Put("/items", h.HandlePutItem)
		r.Delete("/items", h.HandleDeleteItem)
		r.Post("/complete", h.HandleComplete)
		r.Post("/progress", h.HandleProgress)
		r.Get("/completed", h.HandleCompleted)
	})

	return r
}

// HandleGetCart returns the committed table of a cart, encoded as an
// envelope tagged CREATE.
func (h *StatusHandler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.restoredStore(w, r)
	if !ok {
		return
	}

	text, err := cartstatus.Stringify(store.Items(), cartstatus.ActionCreate)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// HandleForgetCart removes the cart slot from storage.
func (h *StatusHandler) HandleForgetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := store.Forget(r.Context()); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetItem returns the status item under the key query parameter.
func (h *StatusHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}

	store, ok := h.restoredStore(w, r)
	if !ok {
		return
	}

	item, found := store.FindStatusByID(key)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "status item not found"})

		return
	}

	writeJSON(w, http.StatusOK, item)
}

// HandlePutItem stores the status item in the body under the key query parameter.
func (h *StatusHandler) HandlePutItem(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	key, ok := requireKey(w, r)
	if !ok {
		return
	}

	var item cartstatus.StatusItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		logger.Error("failed to decode status item", "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return
	}

	store, ok := h.restoredStore(w, r)
	if !ok {
		return
	}

	if err := store.AddItem(r.Context(), key, item); err != nil {
		h.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, item)
}

// HandleDeleteItem removes the status item under the key query parameter.
func (h *StatusHandler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	if err := store.RemoveStatusItem(r.Context(), key); err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete marks the item under the key query parameter as downloaded.
func (h *StatusHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.updateItem(w, r, func(ctx context.Context, store *cartstatus.Store, key string) error {
		return store.SetDownloadCompleted(ctx, key)
	})
}

// HandleProgress records the percent query parameter for the item under key.
func (h *StatusHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	percent, err := strconv.Atoi(r.URL.Query().Get("percent"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "percent must be an integer"})

		return
	}

	h.updateItem(w, r, func(ctx context.Context, store *cartstatus.Store, key string) error {
		return store.SetDownloadPercentage(ctx, key, percent)
	})
}

// HandleCompleted lists the keys that are completely downloaded.
func (h *StatusHandler) HandleCompleted(w http.ResponseWriter, r *http.Request) {
	store, ok := h.restoredStore(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, completedResponse{Cart: store.Name(), Keys: store.CompletedKeys()})
}

func (h *StatusHandler) updateItem(w http.ResponseWriter, r *http.Request, update func(context.Context, *cartstatus.Store, string) error) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}

	store, ok := h.restoredStore(w, r)
	if !ok {
		return
	}

	if err := update(r.Context(), store, key); err != nil {
		h.writeError(w, r, err)

		return
	}

	item, found := store.FindStatusByID(key)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "status item not found"})

		return
	}

	writeJSON(w, http.StatusOK, item)
}

// store returns the store for the request's cart and scope, opening it on first use.
func (h *StatusHandler) store(w http.ResponseWriter, r *http.Request) (*cartstatus.Store, bool) {
	scope, err := storage.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

		return nil, false
	}

	name := chi.URLParam(r, "name")
	key := storeKey{scope: scope, name: name}

	h.mu.Lock()
	defer h.mu.Unlock()

	if store, ok := h.stores[key]; ok {
		return store, true
	}

	ctx := logctx.WithCart(r.Context(), name)

	store, err := h.env.OpenOrCreate(ctx, name, cartstatus.WithScope(scope))
	if err != nil {
		h.writeError(w, r, err)

		return nil, false
	}

	h.stores[key] = store

	return store, true
}

func (h *StatusHandler) restoredStore(w http.ResponseWriter, r *http.Request) (*cartstatus.Store, bool) {
	store, ok := h.store(w, r)
	if !ok {
		return nil, false
	}

	if err := store.Restore(r.Context()); err != nil {
		h.writeError(w, r, err)

		return nil, false
	}

	return store, true
}

func (h *StatusHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var percentErr *cartstatus.InvalidPercentageError

	switch {
	case errors.As(err, &percentErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, cartstatus.ErrStorageUnavailable):
		logger.Error("storage unavailable", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		logger.Error("failed to handle request", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *StatusHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func requireKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing key query parameter"})

		return "", false
	}

	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
