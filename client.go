package scouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the remote stats service.
const DefaultBaseURL = "https://ffscouter.com/api/v1"

// QueryResponse is the outcome of a remote call that didn't fail. When
// Blank is set the service returned nothing and the ids must be retried.
type QueryResponse struct {
	Results map[ID]Result
	Blank   bool
	Limits  *RateLimits
}

// QueryClient performs exactly one remote call for the given ids. Errors
// should be one of *APIError, *HTTPError, *ParseError or *TransportError.
type QueryClient interface {
	Query(ctx context.Context, apiKey string, ids []ID) (QueryResponse, error)
}

// QueryFunc adapts a function to the QueryClient interface.
type QueryFunc func(ctx context.Context, apiKey string, ids []ID) (QueryResponse, error)

func (f QueryFunc) Query(ctx context.Context, apiKey string, ids []ID) (QueryResponse, error) {
	return f(ctx, apiKey, ids)
}

// HTTPClient is the QueryClient for the stats service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL. A nil httpClient gets a
// client with a 30 second timeout.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// StatsURL builds the get-stats URL for the ids.
func StatsURL(baseURL, key string, ids []ID) string {
	targets := make([]string, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, strconv.FormatInt(int64(id), 10))
	}
	query := url.Values{}
	query.Set("key", key)
	query.Set("targets", strings.Join(targets, ","))
	return fmt.Sprintf("%s/get-stats?%s", baseURL, query.Encode())
}

func (c *HTTPClient) Query(ctx context.Context, apiKey string, ids []ID) (QueryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, StatsURL(c.baseURL, apiKey, ids), nil)
	if err != nil {
		return QueryResponse{}, &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return QueryResponse{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return QueryResponse{}, &TransportError{Err: err}
	}

	return DecodeResponse(resp.StatusCode, resp.Header, body, ids)
}

var (
	errInvalidJSON     = errors.New("body is not valid json")
	errUnexpectedShape = errors.New("body is neither a list of stats nor an error")
)

// DecodeResponse turns a raw get-stats response into a QueryResponse or a
// typed error. The results contain exactly one entry for every requested id.
func DecodeResponse(statusCode int, header http.Header, body []byte, ids []ID) (QueryResponse, error) {
	limits := ParseRateLimits(header)
	body = bytes.TrimSpace(body)

	if statusCode < 200 || statusCode > 299 {
		if gjson.ValidBytes(body) {
			parsed := gjson.ParseBytes(body)
			if msg := parsed.Get("error"); parsed.IsObject() && msg.Exists() && msg.String() != "" {
				return QueryResponse{}, &APIError{
					StatusCode: statusCode,
					Code:       int(parsed.Get("code").Int()),
					Message:    msg.String(),
					Limits:     limits,
				}
			}
		}
		return QueryResponse{}, &HTTPError{StatusCode: statusCode, Limits: limits}
	}

	// The service answers with nothing at all when it's called too quickly.
	if len(body) == 0 {
		return QueryResponse{Blank: true, Limits: limits}, nil
	}

	if !gjson.ValidBytes(body) {
		return QueryResponse{}, &ParseError{Err: errInvalidJSON, Limits: limits}
	}

	parsed := gjson.ParseBytes(body)
	if parsed.IsObject() {
		if parsed.Get("code").Exists() {
			return QueryResponse{}, &APIError{
				StatusCode: statusCode,
				Code:       int(parsed.Get("code").Int()),
				Message:    parsed.Get("error").String(),
				Limits:     limits,
			}
		}
		return QueryResponse{}, &ParseError{Err: errUnexpectedShape, Limits: limits}
	}
	if !parsed.IsArray() {
		return QueryResponse{}, &ParseError{Err: errUnexpectedShape, Limits: limits}
	}

	requested := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	results := make(map[ID]Result, len(ids))
	parsed.ForEach(func(_, value gjson.Result) bool {
		result, ok := decodeRecord(value)
		if !ok {
			return true
		}
		if _, ok := requested[result.ID()]; ok {
			results[result.ID()] = result
		}
		return true
	})

	return QueryResponse{Results: completeResults(results, ids), Limits: limits}, nil
}

// decodeRecord converts one element of the stats list. A record that is
// missing any of the stats fields becomes NoData.
func decodeRecord(value gjson.Result) (Result, bool) {
	id := ID(value.Get("player_id").Int())
	if id == 0 {
		return nil, false
	}

	fairFight := value.Get("fair_fight").Float()
	lastUpdated := value.Get("last_updated").Int()
	estimate := value.Get("bs_estimate").Int()
	human := value.Get("bs_estimate_human")

	if fairFight == 0 || lastUpdated == 0 || estimate == 0 || human.Type == gjson.Null || human.String() == "" {
		return NoData{PlayerID: id}, true
	}

	return Estimate{
		PlayerID:      id,
		Score:         fairFight,
		Estimate:      estimate,
		EstimateHuman: human.String(),
		LastUpdated:   time.Unix(lastUpdated, 0),
	}, true
}

// completeResults adds a NoData entry for every id the service left out.
func completeResults(results map[ID]Result, ids []ID) map[ID]Result {
	if results == nil {
		results = make(map[ID]Result, len(ids))
	}
	for _, id := range ids {
		if _, ok := results[id]; !ok {
			results[id] = NoData{PlayerID: id}
		}
	}
	return results
}
