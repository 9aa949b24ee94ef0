package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// MaxPageBytes caps how much of a crawled page is read.
const MaxPageBytes = 1 << 20

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("knowledge: invalid url")
	// ErrBlockedHost is returned when a URL, or a redirect it leads to,
	// resolves to a loopback, private or link-local address.
	ErrBlockedHost = fmt.Errorf("%w: host is not publicly routable", ErrInvalidURL)
)

// carrierNAT is the shared address space of RFC 6598, not covered by net.IP.IsPrivate.
var carrierNAT = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Page is the text content of one fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Crawler fetches single pages. It does not follow links.
type Crawler struct {
	client    *http.Client
	userAgent string
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*crawlerOptions)

type crawlerOptions struct {
	allowPrivate bool
}

// AllowPrivateHosts lets the crawler reach loopback and private networks,
// for intranet deployments.
func AllowPrivateHosts() CrawlerOption {
	return func(o *crawlerOptions) { o.allowPrivate = true }
}

// NewCrawler creates a crawler with a per-request timeout. Connections to
// non-public addresses are refused at dial time, so redirects and DNS answers
// are checked as well as the URL itself.
func NewCrawler(timeout time.Duration, opts ...CrawlerOption) *Crawler {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	var o crawlerOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !o.allowPrivate {
		dialer.Control = publicOnly
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &Crawler{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: "kb-chatbot-crawler/1.0",
	}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	if v4 := ip.To4(); v4 != nil && carrierNAT.Contains(v4) {
		return false
	}
	return true
}

// ValidateURL parses raw and accepts only absolute http and https URLs.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// Fetch downloads raw and extracts its text.
func (c *Crawler) Fetch(ctx context.Context, raw string) (*Page, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, MaxPageBytes)
	page := &Page{URL: u.String()}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", u, err)
		}
		page.Text = normalizeLines(string(data))
		return page, nil
	}

	page.Title, page.Text, err = HTMLText(body)
	if err != nil {
		return nil, err
	}
	return page, nil
}
