// Package testbrowser drives the product feed pages in a headless browser for end-to-end tests.
package testbrowser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/semaphore"
)

// Manager shares one browser process between tests. Each test gets its own incognito context so sessions
// and saved products never leak between tests.
type Manager struct {
	baseBrowser *rod.Browser
	sem         *semaphore.Weighted

	Timeout time.Duration
}

type ManagerConfig struct {
	// MaxConcurrentTests defaults to TESTBROWSER_MAX_CONCURRENT_TESTS, or 1 when that is unset.
	MaxConcurrentTests int64

	// Timeout bounds every wait on a page. Feed pages reload after each sentinel signal, so this must cover a
	// page fetch plus a render. Defaults to 2 seconds.
	Timeout time.Duration
}

func NewManager(config ManagerConfig) (*Manager, error) {
	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser failed: %w", err)
	}

	maxConcurrentTests := config.MaxConcurrentTests
	if maxConcurrentTests == 0 {
		maxConcurrentTests = 1
		if n, err := strconv.ParseInt(os.Getenv("TESTBROWSER_MAX_CONCURRENT_TESTS"), 10, 32); err == nil {
			maxConcurrentTests = n
		}
	}
	if maxConcurrentTests <= 0 {
		return nil, fmt.Errorf("invalid MaxConcurrentTests: %v", maxConcurrentTests)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	return &Manager{
		baseBrowser: browser,
		sem:         semaphore.NewWeighted(maxConcurrentTests),
		Timeout:     timeout,
	}, nil
}

// Acquire waits for a free browser slot and returns an incognito browser released when t ends.
func (m *Manager) Acquire(t testing.TB) *Browser {
	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.sem.Release(1) })

	browser := m.baseBrowser.MustIncognito()
	t.Cleanup(browser.MustClose)

	return &Browser{t: t, Browser: browser, Timeout: m.Timeout}
}

type Browser struct {
	t testing.TB
	*rod.Browser
	Timeout time.Duration
}

func (b *Browser) Page() *Page {
	page, err := b.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.t.Fatal(err)
	}

	return &Page{t: b.t, Page: page, Timeout: b.Timeout}
}

// Page wraps a rod page with assertions that fail the test instead of returning errors.
type Page struct {
	t testing.TB
	*rod.Page
	Timeout time.Duration
}

// ClickOn clicks the first link, button or submit input whose text matches jsRegex.
func (p *Page) ClickOn(jsRegex string) {
	p.t.Helper()

	el, err := p.Page.Timeout(p.Timeout).ElementR(`a, button, input[type="submit"]`, jsRegex)
	if err != nil {
		p.t.Fatalf("failed to find clickable element: %s", jsRegex)
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		p.t.Fatalf("failed to click %s: %v", jsRegex, err)
	}
}

// FillIn replaces the content of the input named by a label's text or by a CSS selector.
func (p *Page) FillIn(labelOrSelector string, content string) {
	p.t.Helper()

	page := p.Page.Timeout(p.Timeout)
	var inputEl *rod.Element
	_, err := page.Race().ElementR("label", labelOrSelector).Handle(func(e *rod.Element) error {
		forAttr, err := e.Attribute("for")
		if err != nil || forAttr == nil {
			return fmt.Errorf("label %q has no for attribute", labelOrSelector)
		}

		inputEl, err = page.Element("#" + *forAttr)
		if err != nil {
			return fmt.Errorf("no input for label %q: %w", *forAttr, err)
		}
		return nil
	}).Element(labelOrSelector).Handle(func(e *rod.Element) error {
		inputEl = e
		return nil
	}).Do()
	if err != nil {
		p.t.Fatalf("failed to find label or selector for %q: %v", labelOrSelector, err)
	}

	if err := inputEl.SelectAllText(); err != nil {
		p.t.Fatalf("failed to select all text for %q", labelOrSelector)
	}
	if err := inputEl.Input(content); err != nil {
		p.t.Fatalf("failed to input text for %q", labelOrSelector)
	}
}

// HasContent waits for an element matching selector whose text matches jsRegex.
func (p *Page) HasContent(selector, jsRegex string) {
	p.t.Helper()

	if _, err := p.Page.Timeout(p.Timeout).ElementR(selector, jsRegex); err != nil {
		p.t.Fatalf("failed to find element by selector %q with content matching %q", selector, jsRegex)
	}
}

// HasCount waits until exactly n elements match selector.
func (p *Page) HasCount(selector string, n int) {
	p.t.Helper()

	page := p.Page.Timeout(p.Timeout)
	err := page.Wait(rod.Eval(`(selector, n) => document.querySelectorAll(selector).length === n`, selector, n))
	if err != nil {
		count := len(p.Page.MustElements(selector))
		p.t.Fatalf("expected %d elements matching %q, found %d", n, selector, count)
	}
}

// ScrollTo scrolls the first element matching selector into view.
func (p *Page) ScrollTo(selector string) {
	p.t.Helper()

	el, err := p.Page.Timeout(p.Timeout).Element(selector)
	if err != nil {
		p.t.Fatalf("failed to find element by selector %q", selector)
	}

	if err := el.ScrollIntoView(); err != nil {
		p.t.Fatalf("failed to scroll to %q: %v", selector, err)
	}
}

// LoadMore scrolls the feed sentinel into view and waits until loaded products are shown.
func (p *Page) LoadMore(loaded int) {
	p.t.Helper()

	p.ScrollTo("[data-sentinel]")
	p.HasCount("[data-product-id]", loaded)
}

// ToggleSave clicks the save button of the product whose card text matches nameRegex.
func (p *Page) ToggleSave(nameRegex string) {
	p.t.Helper()

	card, err := p.Page.Timeout(p.Timeout).ElementR("li.product", nameRegex)
	if err != nil {
		p.t.Fatalf("failed to find product matching %q", nameRegex)
	}

	button, err := card.Element("button.save")
	if err != nil {
		p.t.Fatalf("product %q has no save button", nameRegex)
	}

	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		p.t.Fatalf("failed to click save on %q: %v", nameRegex, err)
	}
}
