package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
)

// defaultProbeURL echoes the caller's public IP, which both proves the
// proxy forwards traffic and captures its exit address.
const defaultProbeURL = "https://api.ipify.org?format=json"

// Validator probes candidate proxies against an IP-echo endpoint in
// bounded concurrency chunks.
type Validator struct {
	probeURL    string
	timeout     time.Duration
	concurrency int
	retries     int
}

func NewValidator(timeout time.Duration, concurrency, retries int) *Validator {
	if concurrency <= 0 {
		concurrency = 10
	}
	if retries < 0 {
		retries = 0
	}
	return &Validator{
		probeURL:    defaultProbeURL,
		timeout:     timeout,
		concurrency: concurrency,
		retries:     retries,
	}
}

// ValidateAll probes every candidate and returns the results. The
// semaphore channel bounds peak concurrent outbound connections.
func (v *Validator) ValidateAll(ctx context.Context, candidates []Scraped) []*Validated {
	log := logging.WithComponent("ProxyPool/Validator")
	if len(candidates) == 0 {
		return nil
	}

	log.Info().Int("count", len(candidates)).Int("concurrency", v.concurrency).Msg("starting validation batch")

	var wg sync.WaitGroup
	results := make(chan *Validated, len(candidates))
	sem := make(chan struct{}, v.concurrency)

	for _, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}

		go func(candidate Scraped) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- v.probe(ctx, candidate)
		}(c)
	}

	wg.Wait()
	close(results)

	validated := make([]*Validated, 0, len(candidates))
	working := 0
	for r := range results {
		validated = append(validated, r)
		if r.IsWorking {
			working++
		}
	}

	log.Info().Int("working", working).Int("total", len(validated)).Msg("validation batch finished")
	return validated
}

// probe attempts the liveness check, with the configured retry budget.
func (v *Validator) probe(ctx context.Context, candidate Scraped) *Validated {
	result := &Validated{Scraped: candidate}

	for attempt := 0; attempt <= v.retries; attempt++ {
		start := time.Now()
		externalIP, err := v.fetchThrough(ctx, candidate)
		result.LastChecked = time.Now()
		result.TotalChecks++

		if err == nil {
			result.IsWorking = true
			result.SuccessfulChecks++
			result.ConsecutiveFailures = 0
			result.ResponseTime = time.Since(start)
			result.ExternalIP = externalIP
			return result
		}
		result.ConsecutiveFailures++
	}

	result.IsWorking = false
	return result
}

// fetchThrough performs one HTTP GET to the probe endpoint routed
// through the candidate proxy, bounded by the validator timeout.
func (v *Validator) fetchThrough(ctx context.Context, candidate Scraped) (string, error) {
	transport, err := v.transportFor(candidate)
	if err != nil {
		return "", err
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	reqCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, v.probeURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	var echo struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&echo); err != nil {
		return "", fmt.Errorf("decoding probe response: %w", err)
	}
	return echo.IP, nil
}

func (v *Validator) transportFor(candidate Scraped) (*http.Transport, error) {
	switch candidate.Protocol {
	case ProtocolSOCKS4, ProtocolSOCKS5:
		// SOCKS4 listings frequently speak SOCKS5 as well; the dialer
		// handshake sorts out the ones that don't.
		dialer, err := xproxy.SOCKS5("tcp", candidate.Key(), nil, &net.Dialer{Timeout: v.timeout})
		if err != nil {
			return nil, fmt.Errorf("building SOCKS dialer for %s: %w", candidate.Key(), err)
		}
		ctxDialer, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS dialer for %s lacks context support", candidate.Key())
		}
		return &http.Transport{
			DialContext:         ctxDialer.DialContext,
			TLSHandshakeTimeout: v.timeout,
		}, nil
	default:
		proxyURL, err := url.Parse(fmt.Sprintf("http://%s", candidate.Key()))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %s: %w", candidate.Key(), err)
		}
		return &http.Transport{
			Proxy:               http.ProxyURL(proxyURL),
			DialContext:         (&net.Dialer{Timeout: v.timeout}).DialContext,
			TLSHandshakeTimeout: v.timeout,
		}, nil
	}
}
