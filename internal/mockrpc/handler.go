// Package mockrpc serves deterministic canned data in place of the strata node,
// the bridge monitoring RPC, the bundler health check and the block explorer.
package mockrpc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ExplorerPrefix is the path prefix of the explorer proxy endpoints.
const ExplorerPrefix = "/api/v2/proxy/account-abstraction"

const (
	explorerTimeLayout = "2006-01-02 15:04:05"
	defaultPageSize    = 50
	maxPageSize        = 1000
)

// Handler serves JSON-RPC on "/" and the HTTP endpoints beside it.
type Handler struct {
	fx     *Fixtures
	rpc    *rpc.Server
	router chi.Router
	now    func() time.Time
	logger zerolog.Logger
}

// NewHandler registers the mock namespaces. now may be nil.
func NewHandler(fx *Fixtures, now func() time.Time, logger zerolog.Logger) (*Handler, error) {
	if now == nil {
		now = time.Now
	}
	h := &Handler{
		fx:     fx,
		rpc:    rpc.NewServer(),
		now:    now,
		logger: logger.With().Str("component", "mockrpc").Logger(),
	}

	services := []struct {
		namespace string
		service   any
	}{
		{"strata", &strataService{node: &fx.Node, strata: &fx.Strata, logger: h.logger}},
		{"stratabridge", &bridgeService{bridge: &fx.Bridge}},
		{"eth", &ethService{node: &fx.Node}},
	}
	for _, s := range services {
		if err := h.rpc.RegisterName(s.namespace, s.service); err != nil {
			h.rpc.Stop()
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", h.health)
	r.Route(ExplorerPrefix, func(r chi.Router) {
		r.Get("/operations", h.operations)
		r.Get("/accounts", h.accounts)
	})
	r.Handle("/", h.rpc)
	h.router = r

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Close stops the RPC server.
func (h *Handler) Close() {
	h.rpc.Stop()
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

type addressRef struct {
	Hash string `json:"hash"`
}

type operationItem struct {
	Hash      string     `json:"hash"`
	Address   addressRef `json:"address"`
	Fee       string     `json:"fee"`
	Timestamp string     `json:"timestamp"`
}

type accountItem struct {
	Address           addressRef `json:"address"`
	CreationTimestamp *string    `json:"creation_timestamp"`
}

type pageParams struct {
	PageToken string `json:"page_token"`
}

type page struct {
	Items          any         `json:"items"`
	NextPageParams *pageParams `json:"next_page_params"`
}

type window struct {
	start, end time.Time
	hasStart   bool
	hasEnd     bool
}

func (w window) contains(t time.Time) bool {
	if w.hasStart && t.Before(w.start) {
		return false
	}
	if w.hasEnd && t.After(w.end) {
		return false
	}
	return true
}

func (h *Handler) operations(w http.ResponseWriter, r *http.Request) {
	win, size, offset, ok := h.parsePaging(w, r)
	if !ok {
		return
	}

	now := h.now().UTC().Truncate(time.Second)
	items := make([]operationItem, 0, len(h.fx.Explorer.Operations))
	for i, op := range h.fx.Explorer.Operations {
		ts := now.Add(-op.age)
		if !win.contains(ts) {
			continue
		}
		items = append(items, operationItem{
			Hash:      "0x" + strconv.FormatInt(int64(i+1), 16),
			Address:   addressRef{Hash: op.Sender},
			Fee:       op.Fee,
			Timestamp: ts.Format(time.RFC3339),
		})
	}
	writePage(w, items, size, offset)
}

func (h *Handler) accounts(w http.ResponseWriter, r *http.Request) {
	win, size, offset, ok := h.parsePaging(w, r)
	if !ok {
		return
	}

	now := h.now().UTC().Truncate(time.Second)
	items := make([]accountItem, 0, len(h.fx.Explorer.Accounts))
	for _, acc := range h.fx.Explorer.Accounts {
		item := accountItem{Address: addressRef{Hash: acc.Address}}
		if acc.age != nil {
			ts := now.Add(-*acc.age)
			if !win.contains(ts) {
				continue
			}
			s := ts.Format(time.RFC3339)
			item.CreationTimestamp = &s
		}
		items = append(items, item)
	}
	writePage(w, items, size, offset)
}

func (h *Handler) parsePaging(w http.ResponseWriter, r *http.Request) (window, int, int, bool) {
	q := r.URL.Query()
	var win window

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(explorerTimeLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time")
			return window{}, 0, 0, false
		}
		win.start, win.hasStart = t, true
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(explorerTimeLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return window{}, 0, 0, false
		}
		win.end, win.hasEnd = t, true
	}

	size := defaultPageSize
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageSize {
			writeError(w, http.StatusBadRequest, "invalid page_size")
			return window{}, 0, 0, false
		}
		size = n
	}

	offset := 0
	if v := q.Get("page_token"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid page_token")
			return window{}, 0, 0, false
		}
		offset = n
	}
	return win, size, offset, true
}

func writePage[T any](w http.ResponseWriter, items []T, size, offset int) {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}

	out := page{Items: items[offset:end]}
	if end < len(items) {
		out.NextPageParams = &pageParams{PageToken: strconv.Itoa(end)}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
