package proxy

import (
	"fmt"
	"time"
)

// Protocol is the proxy wire protocol as advertised by the source.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// Scraped is a candidate proxy as produced by a source. Immutable once
// scraped; validation wraps it rather than mutating it.
type Scraped struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Protocol  Protocol  `json:"protocol"`
	Country   string    `json:"country,omitempty"`
	Anonymity string    `json:"anonymity,omitempty"`
	Source    string    `json:"source"`
	ScrapedAt time.Time `json:"scrapedAt"`
}

// Key identifies a proxy by host:port for deduplication and lookup.
func (s Scraped) Key() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// URL renders the proxy as a dialable URL.
func (s Scraped) URL() string {
	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Host, s.Port)
}

// maxConsecutiveFailures is the eviction threshold: once a proxy has
// failed this many times in a row it leaves the working set on the
// next failure report.
const maxConsecutiveFailures = 3

// Validated carries the health state layered on top of a scraped
// proxy. Mutated only through MarkSuccess/MarkFailed.
type Validated struct {
	Scraped
	IsWorking           bool          `json:"isWorking"`
	ResponseTime        time.Duration `json:"responseTime"`
	LastChecked         time.Time     `json:"lastChecked"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	TotalChecks         int           `json:"totalChecks"`
	SuccessfulChecks    int           `json:"successfulChecks"`
	ExternalIP          string        `json:"externalIp,omitempty"`
}

// MarkSuccess records a successful use: response time folds into a
// moving average and the consecutive-failure counter resets.
func (v *Validated) MarkSuccess(rt time.Duration) {
	v.TotalChecks++
	v.SuccessfulChecks++
	v.ConsecutiveFailures = 0
	v.IsWorking = true
	v.LastChecked = time.Now()

	if v.ResponseTime == 0 {
		v.ResponseTime = rt
	} else {
		v.ResponseTime = time.Duration(float64(v.ResponseTime)*0.7 + float64(rt)*0.3)
	}
}

// MarkFailed records a failed use and increments the consecutive
// failure counter.
func (v *Validated) MarkFailed() {
	v.TotalChecks++
	v.ConsecutiveFailures++
	v.LastChecked = time.Now()
	if v.ConsecutiveFailures >= maxConsecutiveFailures {
		v.IsWorking = false
	}
}

// Evictable reports whether the proxy has exhausted its failure budget.
func (v *Validated) Evictable() bool {
	return v.ConsecutiveFailures >= maxConsecutiveFailures
}
