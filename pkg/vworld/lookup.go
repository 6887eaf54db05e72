package vworld

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	statusOK       = "OK"
	statusNotFound = "NOT_FOUND"
)

// wireResponse is the JSON envelope returned by the address service.
type wireResponse struct {
	Response struct {
		Status string `json:"status"`
		Text   string `json:"text"`
		Error  struct {
			Code string `json:"code"`
			Text string `json:"text"`
		} `json:"error"`
		Result struct {
			Point struct {
				X coordinate `json:"x"` // longitude
				Y coordinate `json:"y"` // latitude
			} `json:"point"`
		} `json:"result"`
	} `json:"response"`
}

// coordinate accepts both JSON numbers and numeric strings; the live service
// quotes point coordinates.
type coordinate float64

func (c *coordinate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("vworld: parse coordinate %q: %w", s, err)
	}
	*c = coordinate(v)
	return nil
}

// lookup issues one getcoord request with the given type hint. The second
// return value reports whether the outcome is terminal: true for a match,
// a transport error, a classified service error, or a system error; false
// only for NOT_FOUND, which lets the caller fall through to the next tier.
func (c *client) lookup(ctx context.Context, address, typeHint string) (Outcome, bool) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{Reason: fmt.Sprintf("system error: %v", err)}, true
		}
	}

	params := url.Values{
		"service": {"address"},
		"request": {"getcoord"},
		"version": {"2.0"},
		"crs":     {c.crs},
		"address": {address},
		"refine":  {"true"},
		"simple":  {"false"},
		"format":  {"json"},
		"type":    {typeHint},
		"key":     {c.key},
	}

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("system error: %v", err)}, true
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("system error: %v", err)}, true
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Outcome{Reason: fmt.Sprintf("transport error: %d", resp.StatusCode)}, true
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("system error: %v", err)}, true
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Outcome{Reason: fmt.Sprintf("system error: %v", err)}, true
	}

	switch wire.Response.Status {
	case statusOK:
		return Outcome{
			Resolved: true,
			Lat:      float64(wire.Response.Result.Point.Y),
			Lng:      float64(wire.Response.Result.Point.X),
			Level:    LevelExact,
		}, true
	case statusNotFound:
		return Outcome{}, false
	default:
		return Outcome{
			Reason: fmt.Sprintf("service error: %s (%s)", wire.Response.Status, serviceMessage(wire)),
		}, true
	}
}

// serviceMessage extracts the human-readable message from an error response.
// The service puts it under response.error.text; older variants used a
// top-level text field.
func serviceMessage(wire wireResponse) string {
	if wire.Response.Error.Text != "" {
		return wire.Response.Error.Text
	}
	return wire.Response.Text
}
