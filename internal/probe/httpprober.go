package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

// TimeoutMessage is the error recorded when a probe exceeds its deadline.
const TimeoutMessage = "Request timeout"

const (
	defaultTimeout = 10 * time.Second
	drainLimit     = 64 << 10
)

var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

type HTTPProber struct {
	Client *http.Client
	// Diagnose enables DNS classification of transport failures.
	Diagnose bool
}

// NewHTTPProber returns a prober whose client follows redirects with the
// net/http default policy. Deadlines come from each monitor's timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Client:   &http.Client{},
		Diagnose: true,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	timeout := m.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(m.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if m.Body != "" && bodyMethods[method] {
		body = strings.NewReader(m.Body)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, m.URL, body)
	if err != nil {
		return down(time.Since(start), err.Error())
	}
	for k, v := range m.HeaderMap() {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(ctx, err) {
			return down(elapsed, TimeoutMessage)
		}
		out := down(elapsed, err.Error())
		if p.Diagnose {
			out.DNSClass = diagnose(ctx, m.URL)
		}
		return out
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	expected := m.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	out := Outcome{
		Status:         domain.StatusUp,
		ResponseTimeMS: elapsed.Milliseconds(),
		StatusCode:     resp.StatusCode,
	}
	if resp.StatusCode != expected {
		out.Status = domain.StatusDown
		out.Error = fmt.Sprintf("Expected status %d, got %d", expected, resp.StatusCode)
	}
	return out
}

func down(elapsed time.Duration, msg string) Outcome {
	return Outcome{
		Status:         domain.StatusDown,
		ResponseTimeMS: elapsed.Milliseconds(),
		Error:          msg,
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// diagnose classifies the target host. IP literals and unparsable URLs
// are skipped.
func diagnose(ctx context.Context, raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil || strings.EqualFold(host, "localhost") {
		return ""
	}
	// the probe deadline may be spent already
	return CheckDNS(context.WithoutCancel(ctx), host).Class
}
