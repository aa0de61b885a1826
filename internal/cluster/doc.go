// Package cluster provides the thin HTTP/JSON transport this project
// uses for its optional admin surface: querying a peer taoserver's
// health and reporting an observed shard failure to it, so an operator
// or an external prober can trigger a manual failover decision.
//
// Automated membership, rebalancing, and leader election across
// taoserver processes are out of scope; this package only supplies the
// generic JSON-over-HTTP plumbing and the couple of request/response
// shapes the admin surface needs. Nothing in internal/consistency or
// internal/wal depends on it — a taoserver instance is fully functional
// with this package entirely unused.
package cluster
