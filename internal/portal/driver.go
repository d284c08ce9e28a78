package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrElementMissing reports that an expected element is not on the current
// page. The navigator treats this as recoverable in the few places where the
// portal legitimately omits a control; everywhere else it is fatal.
var ErrElementMissing = errors.New("element not found on page")

// ErrWaitTimeout reports that an element did not become clickable within the
// wait bound. Always fatal.
var ErrWaitTimeout = errors.New("timed out waiting for element")

// By is the lookup strategy for a Selector.
type By int

const (
	ByID By = iota
	ByCSS
	ByLinkText
)

// Selector locates an element on the current page.
type Selector struct {
	By    By
	Value string
}

func ID(id string) Selector         { return Selector{By: ByID, Value: id} }
func CSS(sel string) Selector       { return Selector{By: ByCSS, Value: sel} }
func LinkText(text string) Selector { return Selector{By: ByLinkText, Value: text} }

func (s Selector) String() string {
	switch s.By {
	case ByID:
		return "#" + s.Value
	case ByLinkText:
		return "link " + s.Value
	default:
		return s.Value
	}
}

// Element is a handle to a located page element. Handles are bound to the
// page state they were resolved against and must be re-resolved after
// navigation changes the page.
type Element interface {
	Click() error
	SendKeys(text string) error
	Text() (string, error)
}

// Driver is the narrow browser capability the navigator runs against. The
// portal exposes exactly one current page per session, so a driver must not
// be shared between navigators. Runs are synchronous and cannot be cancelled
// midway; the only recovery from a wedged session is a fresh run.
type Driver interface {
	Navigate(url string) error
	Find(sel Selector) (Element, error)
	WaitClickable(sel Selector, timeout time.Duration) (Element, error)
}

// ChromeDriver implements Driver against a headless Chrome session.
type ChromeDriver struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// StartChrome launches a browser session. The caller must Close it.
func StartChrome(ctx context.Context, visible bool) (*ChromeDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !visible),
		chromedp.Flag("no-sandbox", true),            // Required for running as root on Linux
		chromedp.Flag("disable-gpu", true),           // Recommended for headless Linux
		chromedp.Flag("disable-dev-shm-usage", true), // Avoid /dev/shm issues on Linux
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Run a no-op to start the browser eagerly so startup failures surface
	// here instead of on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &ChromeDriver{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
	}, nil
}

// Close shuts down the browser session.
func (d *ChromeDriver) Close() {
	for _, cancel := range d.cancels {
		cancel()
	}
}

// Navigate loads the given URL and waits for the document to be ready.
func (d *ChromeDriver) Navigate(url string) error {
	if err := chromedp.Run(d.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Find resolves a selector against the current page without waiting. A
// missing element returns ErrElementMissing.
func (d *ChromeDriver) Find(sel Selector) (Element, error) {
	present, err := d.present(sel)
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", sel, err)
	}
	if !present {
		return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
	}
	query, opt := chromedpQuery(sel)
	return &chromeElement{d: d, query: query, opt: opt, desc: sel.String()}, nil
}

// WaitClickable blocks until the element is visible and enabled, bounded by
// timeout. A timeout surfaces as ErrWaitTimeout.
func (d *ChromeDriver) WaitClickable(sel Selector, timeout time.Duration) (Element, error) {
	query, opt := chromedpQuery(sel)

	waitCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.WaitVisible(query, opt)}
	if sel.By != ByLinkText {
		actions = append(actions, chromedp.WaitEnabled(query, opt))
	}

	if err := chromedp.Run(waitCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", sel, timeout, ErrWaitTimeout)
		}
		return nil, fmt.Errorf("waiting for %s: %w", sel, err)
	}

	return &chromeElement{d: d, query: query, opt: opt, desc: sel.String()}, nil
}

// present checks for the element without waiting for it to appear.
func (d *ChromeDriver) present(sel Selector) (bool, error) {
	var expr string
	switch sel.By {
	case ByID:
		expr = fmt.Sprintf(`document.getElementById(%q) !== null`, sel.Value)
	case ByCSS:
		expr = fmt.Sprintf(`document.querySelector(%q) !== null`, sel.Value)
	case ByLinkText:
		expr = fmt.Sprintf(
			`Array.from(document.querySelectorAll("a")).some(a => a.textContent.trim() === %q)`,
			sel.Value)
	}

	var ok bool
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// chromedpQuery maps a Selector to a chromedp query string and option.
func chromedpQuery(sel Selector) (string, chromedp.QueryOption) {
	switch sel.By {
	case ByID:
		return "#" + sel.Value, chromedp.ByQuery
	case ByLinkText:
		return fmt.Sprintf(`//a[normalize-space(text())=%q]`, sel.Value), chromedp.BySearch
	default:
		return sel.Value, chromedp.ByQuery
	}
}

type chromeElement struct {
	d     *ChromeDriver
	query string
	opt   chromedp.QueryOption
	desc  string
}

func (e *chromeElement) Click() error {
	if err := chromedp.Run(e.d.ctx, chromedp.Click(e.query, e.opt)); err != nil {
		return fmt.Errorf("clicking %s: %w", e.desc, err)
	}
	return nil
}

func (e *chromeElement) SendKeys(text string) error {
	if err := chromedp.Run(e.d.ctx, chromedp.SendKeys(e.query, text, e.opt)); err != nil {
		return fmt.Errorf("typing into %s: %w", e.desc, err)
	}
	return nil
}

func (e *chromeElement) Text() (string, error) {
	var text string
	if err := chromedp.Run(e.d.ctx, chromedp.Text(e.query, &text, e.opt)); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", e.desc, err)
	}
	return strings.TrimRight(text, "\n"), nil
}
