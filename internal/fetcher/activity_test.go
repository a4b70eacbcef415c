package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata-netmon/internal/keys"
	"strata-netmon/internal/model"
)

var activityNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func explorerServer(t *testing.T, accountsStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/operations", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-01-01 00:00:00", q.Get("start_time"))
		assert.Equal(t, "2025-03-15 12:00:00", q.Get("end_time"))
		assert.Equal(t, "2", q.Get("page_size"))

		switch q.Get("page_token") {
		case "":
			writeTestJSON(w, map[string]any{
				"items": []map[string]any{
					{"address": map[string]string{"hash": "0xA"}, "fee": "100", "timestamp": "2025-03-15T11:00:00Z"},
					{"address": map[string]string{"hash": "0xB"}, "fee": "50", "timestamp": "2025-03-13T12:00:00Z"},
					{"address": map[string]string{"hash": "0xC"}, "fee": "7", "timestamp": "2025-01-20T00:00:00Z"},
				},
				"next_page_params": map[string]any{"page_token": "p2"},
			})
		case "p2":
			writeTestJSON(w, map[string]any{
				"items": []map[string]any{
					{"address": map[string]string{"hash": "0xB"}, "fee": "30", "timestamp": "2025-03-15T00:00:00Z"},
					{"address": map[string]string{"hash": "0xD"}, "fee": "5", "timestamp": "yesterday"},
				},
				"next_page_params": nil,
			})
		default:
			t.Errorf("unexpected page token %q", q.Get("page_token"))
		}
	})
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if accountsStatus != http.StatusOK {
			w.WriteHeader(accountsStatus)
			writeTestJSON(w, map[string]string{"message": "index unavailable"})
			return
		}
		switch r.URL.Query().Get("page_token") {
		case "":
			writeTestJSON(w, map[string]any{
				"items": []map[string]any{
					{"address": map[string]string{"hash": "0xA"}, "creation_timestamp": "2025-03-01T00:00:00Z"},
					{"address": map[string]string{"hash": "0xE"}, "creation_timestamp": nil},
				},
				"next_page_params": map[string]any{"page_token": 2},
			})
		default:
			writeTestJSON(w, map[string]any{
				"items": []map[string]any{
					{"address": map[string]string{"hash": "0xB"}, "creation_timestamp": "2025-03-10T00:00:00Z"},
					{"address": map[string]string{"hash": "0xC"}, "creation_timestamp": "2024-12-01T00:00:00Z"},
				},
			})
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestActivity(srvURL string) *Activity {
	return NewActivity(ActivityOptions{
		UserOpsURL:  srvURL + "/operations",
		AccountsURL: srvURL + "/accounts",
		PageSize:    2,
		Timeout:     time.Second,
		Now:         func() time.Time { return activityNow },
	}, keys.Default(), noopLogger())
}

func TestActivityFetch(t *testing.T) {
	srv := explorerServer(t, http.StatusOK)

	got, err := newTestActivity(srv.URL).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]map[string]uint64{
		"User ops":               {"24h": 2, "30d": 3, "YTD": 4},
		"Gas used":               {"24h": 130, "30d": 180, "YTD": 187},
		"Unique active accounts": {"24h": 2, "30d": 2, "YTD": 3},
	}, got.Stats)

	assert.Equal(t, []model.Account{
		{Address: "0xB", CreationTimestamp: "2025-03-10T00:00:00Z", GasUsed: 30},
		{Address: "0xA", CreationTimestamp: "2025-03-01T00:00:00Z", GasUsed: 100},
		{Address: "0xC", CreationTimestamp: "2024-12-01T00:00:00Z", GasUsed: 0},
	}, got.SelectedAccounts["Recent"])

	assert.Equal(t, []model.Account{
		{Address: "0xA", CreationTimestamp: "2025-03-01T00:00:00Z", GasUsed: 100},
		{Address: "0xB", CreationTimestamp: "2025-03-10T00:00:00Z", GasUsed: 30},
	}, got.SelectedAccounts["Top gas consumers 24h"])
}

func TestActivityPageFailureFailsPoll(t *testing.T) {
	srv := explorerServer(t, http.StatusInternalServerError)

	_, err := newTestActivity(srv.URL).Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindUpstream, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.Code)
	assert.Contains(t, fe.Error(), "index unavailable")
}

func TestActivityPageLimitFailsPoll(t *testing.T) {
	srv := explorerServer(t, http.StatusOK)
	activity := NewActivity(ActivityOptions{
		UserOpsURL:  srv.URL + "/operations",
		AccountsURL: srv.URL + "/accounts",
		PageSize:    2,
		MaxPages:    1,
		Timeout:     time.Second,
		Now:         func() time.Time { return activityNow },
	}, keys.Default(), noopLogger())

	_, err := activity.Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindUpstream, fe.Kind)
	assert.ErrorIs(t, err, ErrPageLimit)
}

func TestActivityGasSumSaturates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{"items": []map[string]any{
			{"address": map[string]string{"hash": "0xA"}, "fee": "18446744073709551615", "timestamp": "2025-03-15T11:00:00Z"},
			{"address": map[string]string{"hash": "0xA"}, "fee": "5", "timestamp": "2025-03-15T10:00:00Z"},
		}})
	}))
	defer srv.Close()

	got, err := newTestActivity(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Stats["Gas used"]["24h"])
	assert.Equal(t, uint64(2), got.Stats["User ops"]["24h"])
	require.Len(t, got.SelectedAccounts["Top gas consumers 24h"], 1)
	assert.Equal(t, uint64(math.MaxUint64), got.SelectedAccounts["Top gas consumers 24h"][0].GasUsed)
}

func TestAddSaturating(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint64
		want   uint64
		wantOK bool
	}{
		{"small", 2, 3, 5, true},
		{"exact max", math.MaxUint64 - 1, 1, math.MaxUint64, true},
		{"overflow", math.MaxUint64, 1, math.MaxUint64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := addSaturating(tt.a, tt.b)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestActivityMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	_, err := newTestActivity(srv.URL).Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindMalformed, fe.Kind)
}

func TestActivityBadFeeIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{"items": []map[string]any{
			{"address": map[string]string{"hash": "0xA"}, "fee": "-1", "timestamp": "2025-03-15T11:00:00Z"},
		}})
	}))
	defer srv.Close()

	_, err := newTestActivity(srv.URL).Fetch(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindMalformed, fe.Kind)
}

func TestQueryStart(t *testing.T) {
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), queryStart(activityNow))

	early := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 12, 11, 0, 0, 0, 0, time.UTC), queryStart(early))
}
