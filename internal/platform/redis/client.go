// Package redis opens the client behind the cross-process duplicate claim.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"certledger/internal/platform/config"
)

// Client is a pinged go-redis client. A nil *Client means Redis is not
// configured and callers fall back to in-process claims.
type Client struct {
	*redis.Client
}

// New returns nil, nil when cfg.URL is empty.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health is the readiness check.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Register exports pool statistics, read at scrape time.
func (c *Client) Register(reg prometheus.Registerer) error {
	return reg.Register(&poolCollector{stats: c.PoolStats})
}

var (
	poolHitsDesc = prometheus.NewDesc("certledger_redis_pool_hits_total",
		"Times a free connection was found in the pool.", nil, nil)
	poolMissesDesc = prometheus.NewDesc("certledger_redis_pool_misses_total",
		"Times a free connection was not found in the pool.", nil, nil)
	poolTimeoutsDesc = prometheus.NewDesc("certledger_redis_pool_timeouts_total",
		"Times a wait for a connection timed out.", nil, nil)
	poolStaleDesc = prometheus.NewDesc("certledger_redis_pool_stale_conns_total",
		"Stale connections removed from the pool.", nil, nil)
	poolTotalDesc = prometheus.NewDesc("certledger_redis_pool_total_conns",
		"Connections currently in the pool.", nil, nil)
	poolIdleDesc = prometheus.NewDesc("certledger_redis_pool_idle_conns",
		"Idle connections currently in the pool.", nil, nil)
)

type poolCollector struct {
	stats func() *redis.PoolStats
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolHitsDesc
	ch <- poolMissesDesc
	ch <- poolTimeoutsDesc
	ch <- poolStaleDesc
	ch <- poolTotalDesc
	ch <- poolIdleDesc
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(poolHitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(poolMissesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(poolTimeoutsDesc, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(poolStaleDesc, prometheus.CounterValue, float64(s.StaleConns))
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(s.IdleConns))
}
