package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/browserkit/config"
	"golang.org/x/net/html"
)

const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps the bytes read from one page.
const maxBody = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection. When it
// cannot be built, chromeH1Ready is false and the standard TLS stack is used.
var (
	chromeH1Spec  tls.ClientHelloSpec
	chromeH1Ready bool
)

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		slog.Warn("chrome tls fingerprint unavailable, using crypto/tls", "error", err)
		return
	}
	// http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
	chromeH1Ready = true
}

// HTTPDriver loads pages with a plain HTTP GET and queries the returned HTML.
// Scripts never run, so it only sees server-rendered markup.
type HTTPDriver struct {
	client    *http.Client
	userAgent string
	headers   map[string]string

	mu   sync.RWMutex
	doc  *goquery.Document
	base *url.URL
}

// NewHTTP creates an HTTPDriver with a Chrome-like TLS fingerprint.
func NewHTTP(cfg config.BrowserConfig) *HTTPDriver {
	transport := &http.Transport{ForceAttemptHTTP2: false}
	if chromeH1Ready {
		transport.DialTLSContext = dialTLSChrome
	}
	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUA
	}

	return &HTTPDriver{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.NavigationTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: ua,
		headers:   cfg.ExtraHeaders,
	}
}

// dialTLSChrome establishes a TLS connection using the Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (d *HTTPDriver) Name() string { return "http" }

// Navigate fetches rawURL and replaces the current document. On failure the
// previous document is kept.
func (d *HTTPDriver) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("http: build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: do request: %w", err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 || !isHTMLContentType(ct) {
		return fmt.Errorf("http: non-html or error status %d (content-type: %s) for %s", resp.StatusCode, ct, rawURL)
	}

	root, err := html.Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("http: parse %s: %w", rawURL, err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Url = resp.Request.URL
	base := documentBase(doc)

	d.mu.Lock()
	d.doc = doc
	d.base = base
	d.mu.Unlock()
	return nil
}

// FindElements queries the last loaded document. Before the first
// navigation the page is blank and nothing matches.
func (d *HTTPDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("http: %w %q: %v", ErrInvalidSelector, selector, err)
	}

	d.mu.RLock()
	doc, base := d.doc, d.base
	d.mu.RUnlock()
	if doc == nil {
		return []Element{}, nil
	}

	sel := doc.FindMatcher(matcher)
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &httpElement{sel: s, base: base})
	})
	return out, nil
}

// CurrentURL reports the final URL of the last navigation, after redirects.
func (d *HTTPDriver) CurrentURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.doc == nil || d.doc.Url == nil {
		return ""
	}
	return d.doc.Url.String()
}

func (d *HTTPDriver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// documentBase returns the URL relative references resolve against: the
// first <base href> resolved against the page URL, or the page URL itself.
func documentBase(doc *goquery.Document) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return doc.Url
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return doc.Url
	}
	if doc.Url == nil {
		return ref
	}
	return doc.Url.ResolveReference(ref)
}

type httpElement struct {
	sel  *goquery.Selection
	base *url.URL
}

func (e *httpElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return "", false, nil
	}
	return resolveReference(e.base, name, v), true, nil
}

func (e *httpElement) Text(_ context.Context) (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
