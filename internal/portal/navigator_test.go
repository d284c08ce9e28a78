package portal

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gridtools/usagescraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal scripts the portal's selection state machine behind the Driver
// interface: one current account, one current address, dropdowns rendered
// from fixtures.
type fakePortal struct {
	accounts []string
	// addressLines is what the address dropdown displays per account.
	// Accounts absent from the map have no address selector at all.
	addressLines map[string][]string
	// serviceLabels holds the displayed service-address label for
	// single-address accounts; absent means the label element is missing.
	serviceLabels map[string]string
	// tables holds rendered table lines (headers included) per account and
	// address. Single-address tables are keyed by the empty string. A missing
	// entry means no table renders for that selection.
	tables map[string]map[string][]string

	// failures injects a non-missing driver error for a selector.
	failures map[string]error

	curAccount string
	curAddress string
	navigated  []string
	typed      map[string]string
	selections []string
}

type fakeElement struct {
	text    string
	onClick func() error
	onKeys  func(string)
}

func (e *fakeElement) Click() error {
	if e.onClick != nil {
		return e.onClick()
	}
	return nil
}

func (e *fakeElement) SendKeys(text string) error {
	if e.onKeys != nil {
		e.onKeys(text)
	}
	return nil
}

func (e *fakeElement) Text() (string, error) {
	return e.text, nil
}

func (f *fakePortal) Navigate(url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakePortal) WaitClickable(sel Selector, _ time.Duration) (Element, error) {
	return f.Find(sel)
}

func (f *fakePortal) Find(sel Selector) (Element, error) {
	if err, ok := f.failures[sel.String()]; ok {
		return nil, err
	}

	switch sel.By {
	case ByID:
		return f.findByID(sel.Value)
	case ByCSS:
		return f.findByCSS(sel.Value)
	case ByLinkText:
		return f.findLink(sel.Value)
	}
	return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
}

func (f *fakePortal) findByID(id string) (Element, error) {
	switch id {
	case "WebId", "Password":
		if f.typed == nil {
			f.typed = map[string]string{}
		}
		return &fakeElement{onKeys: func(s string) { f.typed[id] = s }}, nil
	case "submit", tableTabID, accountSelectorID:
		return &fakeElement{}, nil
	case addressSelectorID:
		if _, ok := f.addressLines[f.curAccount]; !ok {
			return nil, fmt.Errorf("#%s: %w", id, ErrElementMissing)
		}
		return &fakeElement{}, nil
	}
	return nil, fmt.Errorf("#%s: %w", id, ErrElementMissing)
}

func (f *fakePortal) findByCSS(sel string) (Element, error) {
	switch sel {
	case "[aria-labelledby=" + accountSelectorID + "]":
		return &fakeElement{text: strings.Join(f.accounts, "\n")}, nil
	case "[aria-labelledby=" + addressSelectorID + "]":
		lines, ok := f.addressLines[f.curAccount]
		if !ok {
			return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
		}
		return &fakeElement{text: strings.Join(lines, "\n")}, nil
	case "[for=serviceAccountddl]":
		label, ok := f.serviceLabels[f.curAccount]
		if !ok {
			return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
		}
		return &fakeElement{text: label}, nil
	case "table":
		lines, ok := f.tables[f.curAccount][f.curAddress]
		if !ok {
			return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
		}
		return &fakeElement{text: strings.Join(lines, "\n")}, nil
	}
	return nil, fmt.Errorf("%s: %w", sel, ErrElementMissing)
}

func (f *fakePortal) findLink(text string) (Element, error) {
	if text == "My Account" || text == "View Usage" {
		return &fakeElement{}, nil
	}
	for _, account := range f.accounts {
		if account == text {
			return &fakeElement{onClick: func() error {
				f.curAccount = text
				f.curAddress = ""
				f.selections = append(f.selections, "account:"+text)
				return nil
			}}, nil
		}
	}
	for _, address := range f.addressLines[f.curAccount] {
		if address == text {
			return &fakeElement{onClick: func() error {
				f.curAddress = text
				f.selections = append(f.selections, "address:"+text)
				return nil
			}}, nil
		}
	}
	return nil, fmt.Errorf("link %s: %w", text, ErrElementMissing)
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestNavigatorLogin(t *testing.T) {
	f := &fakePortal{}
	nav := NewNavigator(f, testLogger())

	err := nav.Login(Credentials{
		LoginURL: "https://portal.example/login",
		Username: "user@example.com",
		Password: "hunter2",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://portal.example/login"}, f.navigated)
	assert.Equal(t, "user@example.com", f.typed["WebId"])
	assert.Equal(t, "hunter2", f.typed["Password"])
}

func TestNavigatorScrapeAll(t *testing.T) {
	mainStRows := []string{
		"Billing-Period Usage Days ... Charge Temp",
		"--- --- --- --- --- --- ---",
		"01/15/2024 120 30 X Y $45.67 52",
		"02/14/2024 98 28 X Y $39.10 48",
	}
	elmRows := []string{
		"header one",
		"header two",
		"03/01/2024 75 31 X Y $30.00 60",
	}

	f := &fakePortal{
		accounts: []string{"A1", "A2", "A3", "A4"},
		addressLines: map[string][]string{
			"A1": {"Main St", "Oak Ave"},
			// The first line matching the history-range control means this
			// dropdown is not an address list at all.
			"A4": {"13 months", "Main St"},
		},
		serviceLabels: map[string]string{
			"A2": "12 Elm St",
		},
		tables: map[string]map[string][]string{
			"A1": {"Main St": mainStRows},
			"A2": {"": elmRows},
			"A3": {"": {"header one", "header two"}},
			"A4": {"": elmRows},
		},
	}

	nav := NewNavigator(f, testLogger())
	data, err := nav.ScrapeAll()
	require.NoError(t, err)

	want := models.RawDataset{
		"A1": {
			"Main St": {
				"01/15/2024 120 30 X Y $45.67 52",
				"02/14/2024 98 28 X Y $39.10 48",
			},
			"Oak Ave": nil, // no table rendered
		},
		"A2": {"12 Elm St": {"03/01/2024 75 31 X Y $30.00 60"}},
		"A3": {"No address": nil}, // table had headers only
		"A4": {"No address": {"03/01/2024 75 31 X Y $30.00 60"}},
	}
	assert.Equal(t, want, data)

	// Accounts visited in dropdown order, addresses in dropdown order.
	assert.Equal(t, []string{
		"account:A1", "address:Main St", "address:Oak Ave",
		"account:A2", "account:A3", "account:A4",
	}, f.selections)
}

func TestNavigatorSentinelAddressList(t *testing.T) {
	f := &fakePortal{
		accounts:     []string{"A1"},
		addressLines: map[string][]string{"A1": {"13 months", "Oak Ave", "Main St"}},
		tables:       map[string]map[string][]string{"A1": {"": {"h1", "h2", "01/15/2024 1 1 X Y $1.00 50"}}},
	}

	nav := NewNavigator(f, testLogger())
	data, err := nav.ScrapeAll()
	require.NoError(t, err)

	// Regardless of the lines after the sentinel, the account is treated as
	// having a single implicit address.
	require.Contains(t, data, "A1")
	assert.Equal(t, map[string][]string{
		"No address": {"01/15/2024 1 1 X Y $1.00 50"},
	}, data["A1"])
}

func TestNavigatorFatalDriverError(t *testing.T) {
	f := &fakePortal{
		accounts: []string{"A1"},
		tables:   map[string]map[string][]string{},
		failures: map[string]error{"table": fmt.Errorf("session lost")},
	}

	nav := NewNavigator(f, testLogger())
	_, err := nav.ScrapeAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session lost")
}
