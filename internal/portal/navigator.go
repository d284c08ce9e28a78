package portal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gridtools/usagescraper/pkg/models"
)

const (
	// The portal's account selector and, when an account has more than one
	// service address, the address selector nested under it.
	accountSelectorID = "SelectButton2"
	addressSelectorID = "SelectButton3"

	// Tab control that switches the usage view to its table rendering.
	tableTabID = "tableTab"

	// First line of the address dropdown when it is actually the history
	// range control, not an address list.
	notAddressSentinel = "13 months"

	// Address label for accounts with a single implicit address and no
	// displayed service-address label.
	noAddressLabel = "No address"

	// Rendered usage tables lead with two header lines.
	tableHeaderLines = 2

	selectWait = 10 * time.Second
)

// Credentials are the portal login form values.
type Credentials struct {
	LoginURL string
	Username string
	Password string
}

// Navigator walks the portal's billing-account / service-address hierarchy
// and collects the raw usage table for every pair it can reach.
//
// A Navigator owns its driver session for the duration of a run. The portal
// has exactly one current page per session, so two navigators sharing a
// driver would corrupt each other's selection state.
type Navigator struct {
	d   Driver
	log *log.Logger
}

// NewNavigator creates a navigator on the given driver session.
func NewNavigator(d Driver, logger *log.Logger) *Navigator {
	return &Navigator{d: d, log: logger}
}

// Login submits the portal's login form and clicks through to the usage
// history page.
func (n *Navigator) Login(creds Credentials) error {
	n.log.Info("logging in", "url", creds.LoginURL)

	if err := n.d.Navigate(creds.LoginURL); err != nil {
		return err
	}

	username, err := n.d.Find(ID("WebId"))
	if err != nil {
		return fmt.Errorf("locating username field: %w", err)
	}
	password, err := n.d.Find(ID("Password"))
	if err != nil {
		return fmt.Errorf("locating password field: %w", err)
	}
	submit, err := n.d.Find(ID("submit"))
	if err != nil {
		return fmt.Errorf("locating submit button: %w", err)
	}

	if err := username.SendKeys(creds.Username); err != nil {
		return err
	}
	if err := password.SendKeys(creds.Password); err != nil {
		return err
	}
	if err := submit.Click(); err != nil {
		return err
	}

	n.log.Info("logged in, accessing account history")

	for _, link := range []string{"My Account", "View Usage"} {
		el, err := n.d.WaitClickable(LinkText(link), selectWait)
		if err != nil {
			return fmt.Errorf("opening %s: %w", link, err)
		}
		if err := el.Click(); err != nil {
			return err
		}
	}

	return nil
}

// ScrapeAll enumerates every account and service address offered by the
// portal's selectors and collects the raw usage table rows for each. The
// result always nests account -> address -> rows, with single-address
// accounts keyed by their displayed service-address label.
func (n *Navigator) ScrapeAll() (models.RawDataset, error) {
	menuButton, err := n.d.WaitClickable(ID(accountSelectorID), selectWait)
	if err != nil {
		return nil, fmt.Errorf("locating account selector: %w", err)
	}

	accounts, err := n.listAccounts(menuButton)
	if err != nil {
		return nil, err
	}
	n.log.Info("found billing accounts", "count", len(accounts))

	data := models.RawDataset{}
	for _, account := range accounts {
		n.log.Info("getting data", "account", account)
		data[account] = map[string][]string{}

		menuButton, err = n.selectAccount(account, menuButton)
		if err != nil {
			return nil, fmt.Errorf("selecting account %s: %w", account, err)
		}

		addresses, err := n.listAddresses()
		if err != nil {
			return nil, fmt.Errorf("listing addresses for %s: %w", account, err)
		}

		if len(addresses) == 0 {
			// Single implicit address. Nest under the displayed
			// service-address label so the dataset shape stays uniform.
			label, err := n.serviceAddressLabel()
			if err != nil {
				return nil, err
			}
			rows, err := n.extractTable()
			if err != nil {
				return nil, err
			}
			data[account][label] = rows
			n.log.Debug("scraped", "account", account, "address", label, "rows", len(rows))
			continue
		}

		addressButton, err := n.d.Find(ID(addressSelectorID))
		if err != nil {
			return nil, fmt.Errorf("resolving address selector: %w", err)
		}
		for _, address := range addresses {
			n.log.Info("getting data", "account", account, "address", address)
			// Same-named addresses under one account collapse into one key;
			// the portal gives us nothing but display text to go on.
			addressButton, menuButton, err = n.selectAddress(address, addressButton)
			if err != nil {
				return nil, fmt.Errorf("selecting address %s: %w", address, err)
			}
			rows, err := n.extractTable()
			if err != nil {
				return nil, err
			}
			data[account][address] = rows
			n.log.Debug("scraped", "account", account, "address", address, "rows", len(rows))
		}
	}

	return data, nil
}

// listAccounts opens the account dropdown, reads its options in display
// order, and closes it again.
func (n *Navigator) listAccounts(menuButton Element) ([]string, error) {
	if err := menuButton.Click(); err != nil {
		return nil, err
	}
	dropdown, err := n.d.Find(CSS("[aria-labelledby=" + accountSelectorID + "]"))
	if err != nil {
		return nil, fmt.Errorf("locating account dropdown: %w", err)
	}
	text, err := dropdown.Text()
	if err != nil {
		return nil, err
	}
	if err := menuButton.Click(); err != nil {
		return nil, err
	}
	return splitLines(text), nil
}

// selectAccount clicks the account's dropdown entry and waits for the
// selector to come back, returning the re-usable menu button handle.
func (n *Navigator) selectAccount(account string, menuButton Element) (Element, error) {
	if err := menuButton.Click(); err != nil {
		return nil, err
	}
	if _, err := n.d.Find(CSS("[aria-labelledby=" + accountSelectorID + "]")); err != nil {
		return nil, fmt.Errorf("locating account dropdown: %w", err)
	}
	entry, err := n.d.Find(LinkText(account))
	if err != nil {
		return nil, err
	}
	if err := entry.Click(); err != nil {
		return nil, err
	}
	return n.d.WaitClickable(ID(accountSelectorID), selectWait)
}

// listAddresses reads the address dropdown for the currently selected
// account. An absent dropdown means the account has a single implicit
// address; so does a dropdown whose first line is the history-range control
// sentinel. Both come back as an empty list.
func (n *Navigator) listAddresses() ([]string, error) {
	addressButton, err := n.d.Find(ID(addressSelectorID))
	if errors.Is(err, ErrElementMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dropdown, err := n.d.Find(CSS("[aria-labelledby=" + addressSelectorID + "]"))
	if errors.Is(err, ErrElementMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := addressButton.Click(); err != nil {
		return nil, err
	}
	text, err := dropdown.Text()
	if err != nil {
		return nil, err
	}
	if err := addressButton.Click(); err != nil {
		return nil, err
	}

	addresses := splitLines(text)
	if len(addresses) > 0 && addresses[0] == notAddressSentinel {
		return nil, nil
	}
	return addresses, nil
}

// selectAddress clicks the address's dropdown entry, waits for the account
// selector to come back, and re-resolves the address selector handle, whose
// identity changes across navigation.
func (n *Navigator) selectAddress(address string, addressButton Element) (addr, menu Element, err error) {
	if err := addressButton.Click(); err != nil {
		return nil, nil, err
	}
	if _, err := n.d.Find(CSS("[aria-labelledby=" + addressSelectorID + "]")); err != nil {
		return nil, nil, fmt.Errorf("locating address dropdown: %w", err)
	}
	entry, err := n.d.Find(LinkText(address))
	if err != nil {
		return nil, nil, err
	}
	if err := entry.Click(); err != nil {
		return nil, nil, err
	}

	menu, err = n.d.WaitClickable(ID(accountSelectorID), selectWait)
	if err != nil {
		return nil, nil, err
	}
	addr, err = n.d.Find(ID(addressSelectorID))
	if err != nil {
		return nil, nil, err
	}
	return addr, menu, nil
}

// serviceAddressLabel returns the displayed service-address label for a
// single-address account, or a fixed fallback when the portal shows none.
func (n *Navigator) serviceAddressLabel() (string, error) {
	el, err := n.d.Find(CSS("[for=serviceAccountddl]"))
	if errors.Is(err, ErrElementMissing) {
		return noAddressLabel, nil
	}
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	if text == "" {
		return noAddressLabel, nil
	}
	return text, nil
}

// extractTable activates the table view for the current selection and
// returns its rows with the two header lines discarded. An address with no
// usage history renders no table; that comes back as an empty result, not an
// error.
func (n *Navigator) extractTable() ([]string, error) {
	tab, err := n.d.Find(ID(tableTabID))
	if err != nil {
		return nil, fmt.Errorf("locating table tab: %w", err)
	}
	if err := tab.Click(); err != nil {
		return nil, err
	}

	table, err := n.d.Find(CSS("table"))
	if errors.Is(err, ErrElementMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	text, err := table.Text()
	if err != nil {
		return nil, err
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= tableHeaderLines {
		return nil, nil
	}
	return lines[tableHeaderLines:], nil
}

// splitLines splits dropdown text into its visible option lines.
func splitLines(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
