package tao

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dreamware/taograph/internal/cache"
	"github.com/dreamware/taograph/internal/config"
	"github.com/dreamware/taograph/internal/router"
	"github.com/dreamware/taograph/internal/wal"
)

// BreakerRecoveryTimeout is the default half-open probe delay named in
// design note §5 ("breaker recovery 30s").
const BreakerRecoveryTimeout = 30 * time.Second

// Chain is the fully assembled TAO core: the outermost Operations plus
// the WAL instance underneath it, which callers (the consistency
// manager, graceful-shutdown code) need direct access to.
type Chain struct {
	Operations Operations
	WAL        *wal.WAL
	Cache      *cache.Cache
}

// Build wires CircuitBreaker(Metrics(WAL(Cache(Base)))), the order
// documented in spec.md §4.6: the breaker sheds load before anything
// else runs, metrics observe every attempt that gets past it, the WAL
// records each write in its audit log after Cache/Base have applied it
// successfully, and Base is the only layer that touches the router
// directly.
func Build(r *router.Router, c *cache.Cache, fs afero.Fs, walDir string, cfg config.WAL, logger *zap.Logger, reg prometheus.Registerer) (*Chain, error) {
	base := NewBase(r)
	cached := NewCacheDecorator(base, c)

	executor := NewWALExecutor(cached)
	w, err := wal.Open(fs, walDir, executor, cfg, logger)
	if err != nil {
		return nil, err
	}

	walDec := NewWALDecorator(cached, w)
	metrics := NewMetricsDecorator(walDec, reg)
	breaker := NewBreakerDecorator(metrics, BreakerRecoveryTimeout)

	return &Chain{Operations: breaker, WAL: w, Cache: c}, nil
}
