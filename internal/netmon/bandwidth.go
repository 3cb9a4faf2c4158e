package netmon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BandwidthEstimator produces an approximate link throughput in Mbps.
type BandwidthEstimator interface {
	Estimate(ctx context.Context) (float64, error)
}

// DefaultBandwidthURL returns the reference download used when no URL is
// configured.
func DefaultBandwidthURL(size int) string {
	if size <= 0 {
		size = 8192
	}
	return fmt.Sprintf("http://httpbin.org/bytes/%d", size)
}

// HTTPBandwidth times a fixed-size download from URL.
type HTTPBandwidth struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Estimate downloads URL and converts the transfer rate to Mbps.
func (b *HTTPBandwidth) Estimate(ctx context.Context) (float64, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "EdgeSync-NetworkMonitor")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bandwidth probe: unexpected status %s", resp.Status)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 || n == 0 {
		return 0, fmt.Errorf("bandwidth probe: nothing measured")
	}
	return float64(n) * 8 / (1024 * 1024) / elapsed, nil
}
