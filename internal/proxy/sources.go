package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
)

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Source scrapes candidate proxies from one public listing. Sources
// only fetch and parse; validation happens elsewhere.
type Source interface {
	Name() string
	Scrape(ctx context.Context) ([]Scraped, error)
}

// DefaultSources returns the built-in public listings.
func DefaultSources() []Source {
	return []Source{
		NewTextListSource("proxyscrape-http",
			"https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000",
			ProtocolHTTP),
		NewTextListSource("proxyscrape-socks5",
			"https://api.proxyscrape.com/v2/?request=displayproxies&protocol=socks5&timeout=10000",
			ProtocolSOCKS5),
		NewTableSource("free-proxy-list", "https://free-proxy-list.net/"),
	}
}

// TextListSource parses plain host:port line listings.
type TextListSource struct {
	name     string
	url      string
	protocol Protocol
	client   *http.Client
}

func NewTextListSource(name, url string, protocol Protocol) *TextListSource {
	return &TextListSource{
		name:     name,
		url:      url,
		protocol: protocol,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *TextListSource) Name() string { return s.name }

func (s *TextListSource) Scrape(ctx context.Context) ([]Scraped, error) {
	body, err := fetch(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var proxies []Scraped
	now := time.Now()
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		host, port, ok := splitHostPort(strings.TrimSpace(scanner.Text()))
		if !ok {
			continue
		}
		proxies = append(proxies, Scraped{
			Host:      host,
			Port:      port,
			Protocol:  s.protocol,
			Source:    s.name,
			ScrapedAt: now,
		})
	}
	if err := scanner.Err(); err != nil {
		return proxies, fmt.Errorf("reading %s listing: %w", s.name, err)
	}
	return proxies, nil
}

// TableSource parses HTML proxy tables of the free-proxy-list shape:
// IP, port, country code, country, anonymity, https flag columns.
type TableSource struct {
	name   string
	url    string
	client *http.Client
}

func NewTableSource(name, url string) *TableSource {
	return &TableSource{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *TableSource) Name() string { return s.name }

func (s *TableSource) Scrape(ctx context.Context) ([]Scraped, error) {
	body, err := fetch(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s page: %w", s.name, err)
	}

	var proxies []Scraped
	now := time.Now()
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td").Map(func(_ int, c *goquery.Selection) string {
			return strings.TrimSpace(c.Text())
		})
		if len(cells) < 7 {
			return
		}
		port, err := strconv.Atoi(cells[1])
		if err != nil || cells[0] == "" {
			return
		}
		protocol := ProtocolHTTP
		if strings.EqualFold(cells[6], "yes") {
			protocol = ProtocolHTTPS
		}
		proxies = append(proxies, Scraped{
			Host:      cells[0],
			Port:      port,
			Protocol:  protocol,
			Country:   cells[3],
			Anonymity: cells[4],
			Source:    s.name,
			ScrapedAt: now,
		})
	})

	return proxies, nil
}

// ScrapeAll queries every source sequentially with a pacing sleep
// between sources, deduplicating by host:port. A failing source is
// logged and skipped; it never aborts the batch.
func ScrapeAll(ctx context.Context, sources []Source, delay time.Duration) []Scraped {
	log := logging.WithComponent("ProxyPool/Scraper")

	seen := make(map[string]struct{})
	var all []Scraped

	for i, src := range sources {
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return all
			}
		}

		proxies, err := src.Scrape(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("source failed, skipping")
			continue
		}

		added := 0
		for _, p := range proxies {
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			seen[p.Key()] = struct{}{}
			all = append(all, p)
			added++
		}
		log.Info().Str("source", src.Name()).Int("found", len(proxies)).Int("new", added).Msg("source scraped")
	}

	return all
}

func fetch(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

func splitHostPort(line string) (string, int, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return "", 0, false
	}
	host, portStr, ok := strings.Cut(line, ":")
	if !ok || host == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}
