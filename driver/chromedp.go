package driver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/use-agent/browserkit/config"
)

// ChromedpDriver drives a Chromium instance through chromedp.
type ChromedpDriver struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	cfg         config.BrowserConfig
}

// NewChromedp starts a browser with one tab.
func NewChromedp(cfg config.BrowserConfig) (*ChromedpDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
	)
	if cfg.BrowserBin != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserBin))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser, so launch errors surface here.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp: start browser: %w", err)
	}
	if len(cfg.ExtraHeaders) > 0 {
		headers := make(network.Headers, len(cfg.ExtraHeaders))
		for k, v := range cfg.ExtraHeaders {
			headers[k] = v
		}
		if err := chromedp.Run(tabCtx, network.SetExtraHTTPHeaders(headers)); err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("chromedp: set extra headers: %w", err)
		}
	}
	slog.Info("browser launched", "driver", "chromedp")

	return &ChromedpDriver{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		cfg:         cfg,
	}, nil
}

func (d *ChromedpDriver) Name() string { return "chromedp" }

// runCtx derives a context from the tab that is also cancelled with ctx.
// Contexts derived this way never own the tab, so cancelling them is safe.
func (d *ChromedpDriver) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(d.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(d.tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url; chromedp.Navigate waits for the load event.
func (d *ChromedpDriver) Navigate(ctx context.Context, url string) error {
	if d.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.NavigationTimeout)
		defer cancel()
	}
	runCtx, cancel := d.runCtx(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("chromedp: navigate %s: %w", url, err)
	}
	return nil
}

// FindElements queries the current document once. AtLeast(0) stops chromedp
// from waiting for a first match.
func (d *ChromedpDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	runCtx, cancel := d.runCtx(ctx)
	defer cancel()

	var (
		nodes   []*cdp.Node
		baseURI string
	)
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`document.baseURI`, &baseURI),
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, classifyQueryError("chromedp", selector, err)
	}

	base, _ := url.Parse(baseURI)
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{d: d, node: n, base: base})
	}
	return out, nil
}

// Close closes the tab and stops the browser.
func (d *ChromedpDriver) Close() error {
	err := chromedp.Cancel(d.tabCtx)
	d.tabCancel()
	d.allocCancel()
	return err
}

type chromedpElement struct {
	d    *ChromedpDriver
	node *cdp.Node
	base *url.URL
}

// Attribute reads the attribute captured when the node was queried.
func (e *chromedpElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attribute(name)
	if !ok {
		return "", false, nil
	}
	return resolveReference(e.base, name, v), true, nil
}

func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	runCtx, cancel := e.d.runCtx(ctx)
	defer cancel()

	var text string
	err := chromedp.Run(runCtx,
		chromedp.TextContent([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp: read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
