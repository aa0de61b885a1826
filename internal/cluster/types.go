// Package cluster provides the HTTP/JSON admin transport. See doc.go.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dreamware/taograph/internal/taoerr"
)

// HealthReport is what a taoserver's admin health endpoint returns:
// enough for a peer or an operator to decide whether this process is
// still serving traffic, not a full topology dump.
type HealthReport struct {
	ShardIDs  []int32   `json:"shard_ids"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}

// MarkShardFailedRequest is POSTed to a peer's admin surface when an
// operator (or an external prober) has observed shardID as unreachable
// and wants that peer to transition it to topology.Failed.
type MarkShardFailedRequest struct {
	ShardID int32  `json:"shard_id"`
	Reason  string `json:"reason"`
}

// httpClient is shared across admin calls; a 5s timeout keeps an
// unreachable peer from hanging an operator command.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// classifyStatus maps an HTTP status code to the taoerr.Kind a caller in
// this codebase needs to branch on — the same taxonomy every decorator
// and the consistency manager use, rather than a bare status code a
// caller would have to re-interpret at every call site.
func classifyStatus(status int) taoerr.Kind {
	switch {
	case status == http.StatusNotFound:
		return taoerr.NotFound
	case status == http.StatusConflict:
		return taoerr.Conflict
	case status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
		return taoerr.ServiceUnavailable
	case status >= 500:
		return taoerr.TransientIO
	case status >= 400:
		return taoerr.Validation
	default:
		return taoerr.Unknown
	}
}

func httpStatusErr(op, url string, status int) error {
	return taoerr.New(op, classifyStatus(status), fmt.Errorf("http %s: %d", url, status))
}

// PostJSON POSTs body as JSON to url and decodes the response into out
// (skipped if out is nil). A non-2xx status is classified via
// classifyStatus; a transport-level failure (DNS, connection refused,
// context deadline) is reported as taoerr.TransientIO since the peer may
// simply be briefly unreachable.
func PostJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return taoerr.New("cluster.PostJSON", taoerr.Serialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return taoerr.New("cluster.PostJSON", taoerr.Validation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return taoerr.New("cluster.PostJSON", taoerr.TransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpStatusErr("cluster.PostJSON", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return taoerr.New("cluster.PostJSON", taoerr.Serialization, err)
	}
	return nil
}

// GetJSON GETs url and decodes the JSON response into out, applying the
// same taoerr classification as PostJSON.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return taoerr.New("cluster.GetJSON", taoerr.Validation, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return taoerr.New("cluster.GetJSON", taoerr.TransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpStatusErr("cluster.GetJSON", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return taoerr.New("cluster.GetJSON", taoerr.Serialization, err)
	}
	return nil
}
