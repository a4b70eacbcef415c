package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"strata-netmon/internal/keys"
	"strata-netmon/internal/service"
)

type handlers struct {
	query Query
}

func (h *handlers) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.query.GetNetworkStatus())
}

func (h *handlers) balances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.query.GetBalances())
}

func (h *handlers) bridgeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.query.GetBridgeStatus())
}

func (h *handlers) activityStats(w http.ResponseWriter, r *http.Request) {
	var q service.ActivityQuery
	params := []struct {
		name string
		dst  *string
	}{
		{"window", &q.Window},
		{"stat", &q.Stat},
		{"selection", &q.Selection},
	}
	values := r.URL.Query()
	for _, p := range params {
		v, err := queryParam(values[p.name], p.name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*p.dst = v
	}
	writeJSON(w, http.StatusOK, h.query.GetActivityStats(q))
}

// queryParam accepts an absent parameter or exactly one valid name.
func queryParam(values []string, name string) (string, error) {
	switch len(values) {
	case 0:
		return "", nil
	case 1:
		if !keys.ValidName(values[0]) {
			return "", fmt.Errorf("invalid %s parameter", name)
		}
		return values[0], nil
	default:
		return "", fmt.Errorf("%s parameter given more than once", name)
	}
}

func (h *handlers) keySchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.query.GetKeySchema())
}

func (h *handlers) keyDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.query.KeyDocument())
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.query.GetHealth())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
