package netmon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// STUNProber measures round trips of STUN binding requests. Useful on
// networks that only let UDP through toward the cloud side.
type STUNProber struct {
	Server  string
	Timeout time.Duration
}

// RTT performs one binding transaction against Server.
func (p *STUNProber) RTT(ctx context.Context) (time.Duration, error) {
	uriStr := strings.TrimSpace(p.Server)
	if uriStr == "" {
		return 0, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}
	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return 0, err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return 0, err
	}
	defer client.Close()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				done <- res.Error
				return
			}
			var addr stun.XORMappedAddress
			done <- addr.GetFrom(res.Message)
		})
		if err != nil {
			done <- err
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Loss runs count binding transactions and reports the failed share.
func (p *STUNProber) Loss(ctx context.Context, count int) (float64, error) {
	return lossByProbing(ctx, count, p.RTT)
}
