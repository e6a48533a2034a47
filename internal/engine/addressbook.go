package engine

import (
	"fmt"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

// Route is where a service address leads.
type Route struct {
	Kind ledger.Kind

	// AssetName and Asset are empty for exchange-level instructions.
	AssetName string
	Asset     *ledger.Asset
}

// AddressBook maps every service address to its route. A book is built from
// one exchange state and never modified; handlers that add or replace assets
// cause the processor to build a new one.
type AddressBook struct {
	routes map[string]Route
}

// BuildAddressBook indexes the service addresses of ex. Duplicate or empty
// addresses are a configuration error reported as *ConsistencyError.
func BuildAddressBook(ex *ledger.Exchange) (AddressBook, error) {
	book := AddressBook{routes: make(map[string]Route, 2+10*len(ex.Assets))}
	owner := make(map[string]string)

	add := func(addr, who string, r Route) error {
		if addr == "" {
			return &ConsistencyError{
				Code:    ErrCodeAddressCollision,
				Message: fmt.Sprintf("%s has no address", who),
			}
		}
		if prev, dup := owner[addr]; dup {
			return NewAddressCollision(addr, prev, who)
		}
		owner[addr] = who
		book.routes[addr] = r
		return nil
	}

	if err := add(ex.CreateAssetAddress, "exchange create_asset", Route{Kind: ledger.KindCreateAsset}); err != nil {
		return AddressBook{}, err
	}
	if err := add(ex.StateControlAddress, "exchange state_control", Route{Kind: ledger.KindExchangeStateControl}); err != nil {
		return AddressBook{}, err
	}
	for _, name := range ex.AssetNames() {
		a := ex.Assets[name]
		for _, ka := range a.Addresses.ServiceAddresses() {
			who := fmt.Sprintf("asset %s %s", name, ka.Kind)
			if err := add(ka.Address, who, Route{Kind: ka.Kind, AssetName: name, Asset: a}); err != nil {
				return AddressBook{}, err
			}
		}
	}
	return book, nil
}

// Lookup returns the route for addr.
func (b AddressBook) Lookup(addr string) (Route, bool) {
	r, ok := b.routes[addr]
	return r, ok
}

// Len returns the number of service addresses in the book.
func (b AddressBook) Len() int {
	return len(b.routes)
}
