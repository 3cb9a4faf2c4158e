package netmon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Prober measures reachability of a single target.
type Prober interface {
	// RTT sends one probe and returns its round-trip time.
	RTT(ctx context.Context) (time.Duration, error)
	// Loss runs one batch of count probes and returns the percentage lost.
	Loss(ctx context.Context, count int) (float64, error)
}

// Probe method names accepted by NewProber.
const (
	MethodPing = "ping"
	MethodTCP  = "tcp"
	MethodSTUN = "stun"
)

// ErrNoReply is returned when a probe completed without a usable answer.
var ErrNoReply = errors.New("no reply")

// NewProber builds the prober for method. port is only used by tcp.
func NewProber(method, target string, port int, timeout time.Duration) (Prober, error) {
	switch strings.ToLower(method) {
	case "", MethodPing:
		return &PingProber{Target: target, Timeout: timeout}, nil
	case MethodTCP:
		if port <= 0 {
			return nil, fmt.Errorf("tcp prober requires a port")
		}
		return &TCPProber{Addr: net.JoinHostPort(target, strconv.Itoa(port)), Timeout: timeout}, nil
	case MethodSTUN:
		return &STUNProber{Server: target, Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}

// PingProber shells out to the system ping binary.
type PingProber struct {
	Target  string
	Timeout time.Duration
}

var (
	pingTimeRe = regexp.MustCompile(`time[=<]([0-9.]+)`)
	pingLossRe = regexp.MustCompile(`([0-9.]+)% packet loss`)
)

// RTT runs `ping -c 1` and parses the reported time.
func (p *PingProber) RTT(ctx context.Context) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, "ping", "-c", "1", "-W", waitSeconds(p.Timeout), p.Target).Output()
	if err != nil {
		return 0, err
	}
	ms, ok := parsePingTime(string(out))
	if !ok {
		return 0, ErrNoReply
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// Loss runs `ping -c count` and parses the summary line.
func (p *PingProber) Loss(ctx context.Context, count int) (float64, error) {
	out, err := exec.CommandContext(ctx, "ping", "-c", strconv.Itoa(count), "-W", waitSeconds(p.Timeout), p.Target).Output()
	// ping exits non-zero when replies are missing but still prints a summary.
	loss, ok := parsePingLoss(string(out))
	if !ok {
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no packet loss summary in ping output")
	}
	return loss, nil
}

func waitSeconds(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

func parsePingTime(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		m := pingTimeRe.FindStringSubmatch(line)
		if len(m) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func parsePingLoss(out string) (float64, bool) {
	m := pingLossRe.FindStringSubmatch(out)
	if len(m) != 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TCPProber times TCP connection establishment, for hosts where ICMP is
// filtered or ping is not installed.
type TCPProber struct {
	Addr    string
	Timeout time.Duration
}

// RTT dials Addr once and returns the handshake time.
func (p *TCPProber) RTT(ctx context.Context) (time.Duration, error) {
	d := net.Dialer{Timeout: p.Timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}

// Loss dials count times and reports the failed share.
func (p *TCPProber) Loss(ctx context.Context, count int) (float64, error) {
	return lossByProbing(ctx, count, p.RTT)
}

func lossByProbing(ctx context.Context, count int, probe func(context.Context) (time.Duration, error)) (float64, error) {
	if count <= 0 {
		return 0, nil
	}
	lost := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := probe(ctx); err != nil {
			lost++
		}
	}
	return float64(lost) / float64(count) * 100, nil
}
