package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/browserkit/config"
	"github.com/ysmood/gson"
)

// RodDriver drives a Chromium instance launched by go-rod.
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cfg      config.BrowserConfig
}

// NewRod launches a browser and opens the single page the driver controls.
func NewRod(cfg config.BrowserConfig) (*RodDriver, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod: launch browser: %w", err)
	}
	slog.Info("browser launched", "driver", "rod", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("rod: connect to browser: %w", err)
	}

	d := &RodDriver{launcher: l, browser: browser, cfg: cfg}
	if err := d.openPage(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// openPage creates the page and applies stealth, user agent and headers.
// All three must be in place before the first navigation.
func (d *RodDriver) openPage() error {
	var (
		page *rod.Page
		err  error
	)
	if d.cfg.Stealth {
		page, err = stealth.Page(d.browser)
	} else {
		page, err = d.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("rod: create page: %w", err)
	}

	if d.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent}); err != nil {
			return fmt.Errorf("rod: set user agent: %w", err)
		}
	}
	if len(d.cfg.ExtraHeaders) > 0 {
		err := proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(d.cfg.ExtraHeaders),
		}.Call(page)
		if err != nil {
			return fmt.Errorf("rod: set extra headers: %w", err)
		}
	}

	d.page = page
	return nil
}

func (d *RodDriver) Name() string { return "rod" }

// Navigate loads url and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	if d.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.NavigationTimeout)
		defer cancel()
	}
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("rod: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("rod: wait load %s: %w", url, err)
	}
	return nil
}

// FindElements queries the current document once, without waiting.
func (d *RodDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classifyQueryError("rod", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

// Close closes the browser and removes the launcher's user data dir.
func (d *RodDriver) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
	return err
}

type rodElement struct {
	el *rod.Element
}

// Attribute prefers the DOM property, which the browser already resolves
// (absolute href), and falls back to the raw attribute.
func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	el := e.el.Context(ctx)

	prop, err := el.Property(name)
	if err != nil {
		return "", false, fmt.Errorf("rod: read property %q: %w", name, err)
	}
	if !prop.Nil() {
		if s, ok := prop.Val().(string); ok {
			return s, true, nil
		}
	}

	attr, err := el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("rod: read attribute %q: %w", name, err)
	}
	if attr == nil {
		return "", false, nil
	}
	return *attr, true, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("rod: read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
