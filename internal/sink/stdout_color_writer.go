// ColorStdoutWriter prints human-friendly, colorized sync output.
package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var appPalette = []string{colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// ColorStdoutWriter prints results and samples using ANSI colors.
type ColorStdoutWriter struct {
	mu        sync.Mutex
	out       io.Writer
	appColors map[string]string
	colorIdx  int
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to out.
func NewColorStdoutWriter(out io.Writer) *ColorStdoutWriter {
	return &ColorStdoutWriter{out: out, appColors: make(map[string]string)}
}

func (w *ColorStdoutWriter) appColor(app string) string {
	if c, ok := w.appColors[app]; ok {
		return c
	}
	c := appPalette[w.colorIdx%len(appPalette)]
	w.appColors[app] = c
	w.colorIdx++
	return c
}

// WriteResult prints one result line.
func (w *ColorStdoutWriter) WriteResult(r scheduler.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, formatResult(r, w.appColor(r.Event.AppType)))
	return err
}

// WriteCondition prints one sample line with its quality score.
func (w *ColorStdoutWriter) WriteCondition(c netmon.Condition) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, formatCondition(c))
	return err
}

func formatResult(r scheduler.Result, appColor string) string {
	status, statusColor := "ok", colorGreen
	if !r.Success {
		status, statusColor = "FAIL "+r.Error, colorRed
	}
	return fmt.Sprintf("%s[%s]%s %sapp=%s%s %sdata=%s%s %sprio=%d%s %ssize=%d%s %sdur=%s%s %s%s%s",
		colorGray, r.Timestamp.Format(time.RFC3339), colorReset,
		appColor, r.Event.AppType, colorReset,
		colorBlue, r.Event.DataID, colorReset,
		colorYellow, r.Event.Priority, colorReset,
		colorCyan, r.Event.Size, colorReset,
		colorMagenta, r.Duration.Round(time.Millisecond), colorReset,
		statusColor, status, colorReset,
	)
}

func formatCondition(c netmon.Condition) string {
	score := netmon.Score(c)
	scoreColor := colorGreen
	switch {
	case score < 30:
		scoreColor = colorRed
	case score < 60:
		scoreColor = colorYellow
	}
	return fmt.Sprintf("%s[%s]%s %sNET%s %slat=%.1fms%s %sbw=%.2fMbps%s %sloss=%.1f%%%s %sjitter=%.1fms%s %sscore=%.1f%s",
		colorGray, c.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, colorReset,
		colorYellow, c.LatencyMs, colorReset,
		colorCyan, c.BandwidthMbps, colorReset,
		colorMagenta, c.PacketLoss, colorReset,
		colorGray, c.JitterMs, colorReset,
		scoreColor, score, colorReset,
	)
}
