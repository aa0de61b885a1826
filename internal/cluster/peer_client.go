package cluster

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/taograph/internal/taoerr"
)

// markFailedRetryAttempts bounds how many times ReportShardFailed retries
// a TransientIO/ServiceUnavailable failure before giving up. Mirrors
// taoerr's own read/write asymmetry (internal/wal retries writes, reads
// surface TransientIO immediately): reporting a shard failed is a write
// to the peer's topology and worth a few attempts through a flaky link,
// where FetchHealth is a read and fails fast like the rest of the
// codebase's read paths.
const markFailedRetryAttempts = 3

// PeerClient calls another taoserver process's admin HTTP surface. It is
// the only thing in this package that knows the admin surface's actual
// route shapes; PostJSON/GetJSON stay generic.
type PeerClient struct {
	baseURL string
}

// NewPeerClient constructs a client for the taoserver admin surface at
// baseURL (e.g. "http://10.0.1.5:9090").
func NewPeerClient(baseURL string) *PeerClient {
	return &PeerClient{baseURL: baseURL}
}

// FetchHealth calls the peer's GET /admin/health. Like any other read
// path in this codebase, a TransientIO failure here is surfaced to the
// caller immediately rather than retried internally.
func (c *PeerClient) FetchHealth(ctx context.Context) (HealthReport, error) {
	var report HealthReport
	err := GetJSON(ctx, c.baseURL+"/admin/health", &report)
	return report, err
}

// ReportShardFailed calls the peer's POST /admin/shard/mark-failed,
// asking it to transition shardID to failed in its own topology view.
// The call is idempotent on the peer (marking an already-failed shard
// failed again is a no-op), so a TransientIO or ServiceUnavailable
// response — the peer momentarily unreachable or mid-restart — is
// retried with bounded exponential backoff rather than surfaced on the
// first blip; any other classified failure (e.g. Validation from a
// malformed shardID) is returned immediately.
func (c *PeerClient) ReportShardFailed(ctx context.Context, shardID int32, reason string) error {
	req := MarkShardFailedRequest{ShardID: shardID, Reason: reason}
	url := c.baseURL + "/admin/shard/mark-failed"

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), markFailedRetryAttempts-1)
	bo = backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		err := PostJSON(ctx, url, req, nil)
		if err == nil {
			return nil
		}
		switch taoerr.KindOf(err) {
		case taoerr.TransientIO, taoerr.ServiceUnavailable:
			return err
		default:
			return backoff.Permanent(err)
		}
	}, bo)
}

func (c *PeerClient) String() string {
	return fmt.Sprintf("PeerClient(%s)", c.baseURL)
}
