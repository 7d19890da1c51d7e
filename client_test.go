package scouter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ffscout/scouter"
)

func TestStatsURL(t *testing.T) {
	t.Parallel()

	got := scouter.StatsURL("https://example.com/api/v1", "abc", []scouter.ID{3, 1, 2})
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/v1/get-stats" {
		t.Errorf("unexpected path %q", u.Path)
	}
	if key := u.Query().Get("key"); key != "abc" {
		t.Errorf("unexpected key %q", key)
	}
	if targets := u.Query().Get("targets"); targets != "3,1,2" {
		t.Errorf("expected the ids in request order, got %q", targets)
	}
}

// statsServer answers every request with the given status, headers and body.
// The returned function reports the last query it saw.
func statsServer(t *testing.T, status int, header http.Header, body string) (*httptest.Server, func() url.Values) {
	t.Helper()
	var mu sync.Mutex
	var last url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.Query()
		mu.Unlock()
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() url.Values {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func limitHeaders(reset time.Time, remaining, limit string) http.Header {
	h := http.Header{}
	h.Set(scouter.HeaderRateLimitReset, strconv.FormatInt(reset.Unix(), 10))
	h.Set(scouter.HeaderRateLimitRemaining, remaining)
	h.Set(scouter.HeaderRateLimitLimit, limit)
	return h
}

func TestHTTPClientDecodesStats(t *testing.T) {
	t.Parallel()

	body := `[
		{"player_id": 1, "fair_fight": 2.5, "bs_estimate": 1000, "bs_estimate_human": "1k", "last_updated": 1700000000},
		{"player_id": 2, "fair_fight": null, "bs_estimate": null, "bs_estimate_human": null, "last_updated": null},
		{"player_id": 99, "fair_fight": 1.1, "bs_estimate": 5, "bs_estimate_human": "5", "last_updated": 1700000000}
	]`
	reset := time.Unix(1_700_000_060, 0)
	srv, last := statsServer(t, http.StatusOK, limitHeaders(reset, "80", "100"), body)
	client := scouter.NewHTTPClient(srv.URL, srv.Client())

	resp, err := client.Query(context.Background(), "secret", []scouter.ID{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	// Unrequested ids are dropped and missing ones become NoData.
	want := scouter.QueryResponse{
		Results: map[scouter.ID]scouter.Result{
			1: scouter.Estimate{
				PlayerID:      1,
				Score:         2.5,
				Estimate:      1000,
				EstimateHuman: "1k",
				LastUpdated:   time.Unix(1_700_000_000, 0),
			},
			2: scouter.NoData{PlayerID: 2},
			3: scouter.NoData{PlayerID: 3},
		},
		Limits: &scouter.RateLimits{ResetAt: reset, Remaining: 80, Limit: 100, UsedThisWindow: 20},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("unexpected response (-want +got):\n%s", diff)
	}
	if key := last().Get("key"); key != "secret" {
		t.Errorf("expected the api key to be sent, got %q", key)
	}
}

func TestHTTPClientReportsBlankResponses(t *testing.T) {
	t.Parallel()
	srv, _ := statsServer(t, http.StatusOK, nil, "  \n")
	client := scouter.NewHTTPClient(srv.URL, srv.Client())

	resp, err := client.Query(context.Background(), "key", []scouter.ID{1})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Blank || resp.Results != nil {
		t.Errorf("expected a blank response, got %+v", resp)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		body   string
		target error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "api error in a successful response",
			status: http.StatusOK,
			body:   `{"code": 2, "error": "Incorrect API key"}`,
			target: scouter.ErrRemoteAPI,
			check: func(t *testing.T, err error) {
				var apiErr *scouter.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != 2 || apiErr.Message != "Incorrect API key" {
					t.Errorf("unexpected api error %v", err)
				}
			},
		},
		{
			name:   "api error with a failing status",
			status: http.StatusTooManyRequests,
			body:   `{"code": 5, "error": "Too many requests"}`,
			target: scouter.ErrRemoteAPI,
			check: func(t *testing.T, err error) {
				var apiErr *scouter.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
					t.Errorf("unexpected api error %v", err)
				}
			},
		},
		{
			name:   "failing status without a payload",
			status: http.StatusInternalServerError,
			body:   "oops",
			target: scouter.ErrRemoteTransport,
			check: func(t *testing.T, err error) {
				var httpErr *scouter.HTTPError
				if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("unexpected http error %v", err)
				}
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   `[{"player_id": 1,`,
			target: scouter.ErrRemoteParse,
		},
		{
			name:   "unexpected shape",
			status: http.StatusOK,
			body:   `"hello"`,
			target: scouter.ErrRemoteParse,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reset := time.Unix(1_700_000_060, 0)
			srv, _ := statsServer(t, tc.status, limitHeaders(reset, "0", "100"), tc.body)
			client := scouter.NewHTTPClient(srv.URL, srv.Client())

			_, err := client.Query(context.Background(), "key", []scouter.ID{1})
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if tc.check != nil {
				tc.check(t, err)
			}

			// The rate limit snapshot travels with the error.
			limits := scouter.LimitsFromError(err)
			if limits == nil || limits.Remaining != 0 || !limits.ResetAt.Equal(reset) {
				t.Errorf("expected the rate limits on the error, got %+v", limits)
			}
		})
	}
}

func TestHTTPClientTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := scouter.NewHTTPClient(baseURL, nil)
	_, err := client.Query(context.Background(), "key", []scouter.ID{1})
	if !errors.Is(err, scouter.ErrRemoteTransport) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	var transportErr *scouter.TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("expected a *TransportError, got %T", err)
	}
	if scouter.LimitsFromError(err) != nil {
		t.Error("expected no rate limits without a response")
	}
}
