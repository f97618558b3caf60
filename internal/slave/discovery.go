// Package slave implements the worker side of the protocol: LAN discovery
// of the coordinator, session identity, heartbeat cadence, the job
// bootstrap + task fetch/execute/report cycle, and the subprocess runner
// that invokes the external program.
package slave

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/master"
)

// localIP reports this process's own LAN address via the same UDP-dial
// trick as the coordinator side: dial a well-known address (no packet is
// ever actually sent) purely to let the kernel pick a local address, then
// read it back. Falls back to loopback on failure.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// probe reports whether host:port answers /discovery within the configured
// timeout.
func probe(ctx context.Context, client *http.Client, host string, port int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d%s", host, port, master.EndpointDiscovery)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DiscoverMaster scans the /24 subnet of this host's own LAN address for a
// coordinator listening on port, probing each candidate host's /discovery
// endpoint. It blocks, retrying a full scan round with capped exponential
// backoff and jitter, until it finds one or ctx is canceled.
func DiscoverMaster(ctx context.Context, port int, probeTimeout, backoffMin, backoffMax time.Duration) (string, error) {
	client := &http.Client{Timeout: probeTimeout}
	backoff := backoffMin

	for {
		prefix := networkPrefix(localIP())
		logger.Info().Str("prefix", prefix).Int("port", port).Msg("scanning lan for coordinator")

		for i := 0; i < 256; i++ {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}

			host := prefix + "." + strconv.Itoa(i)
			if probe(ctx, client, host, port, probeTimeout) {
				logger.Info().Str("host", host).Msg("coordinator found")
				return host, nil
			}
		}

		logger.Warn().Dur("backoff", backoff).Msg("coordinator not found this round, backing off")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff = nextBackoff(backoff, backoffMax)
	}
}

func networkPrefix(ip string) string {
	return ip[:lastDot(ip)]
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return len(s)
}

// nextBackoff doubles current, capped at max.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// jitter adds up to +/-20% random perturbation to d to avoid every slave on
// the subnet retrying a scan round in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
