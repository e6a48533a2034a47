package assets

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/text/unicode/norm"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

// maxInitID bounds init ids to what a create-asset amount can address.
const maxInitID = 100_000_000

// Network selects the address version bytes accepted by Validate.
type Network string

const (
	// NetworkAny skips address decoding. Tests use it with symbolic
	// addresses.
	NetworkAny     Network = ""
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

var versionBytes = map[Network][]byte{
	NetworkMainnet: {0x00, 0x05},
	NetworkTestnet: {0x6f, 0xc4},
}

// ParseNetwork validates a configured network name.
func ParseNetwork(s string) (Network, error) {
	switch n := Network(s); n {
	case NetworkAny, NetworkMainnet, NetworkTestnet:
		return n, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

var (
	errAddress = errors.New("invalid address")
	errShares  = errors.New("share table mismatch")
	errName    = errors.New("invalid asset name")
)

func codeOf(err error) string {
	switch {
	case errors.Is(err, errAddress):
		return ErrCodeAddress
	case errors.Is(err, errShares):
		return ErrCodeShares
	case errors.Is(err, errName):
		return ErrCodeName
	}
	return ErrCodeSchema
}

// Template is one entry of the asset init data.
type Template struct {
	ID          int64
	Name        string
	Description string
	TotalShares int64
	Addresses   ledger.AssetAddresses
	Holders     map[string]int64
}

// Validate checks the template on its own. Collisions with other assets are
// detected when the exchange address book is built.
func (t Template) Validate(network Network) error {
	if t.Name == "" || !norm.NFC.IsNormalString(t.Name) {
		return fmt.Errorf("%w: %q must be non-empty NFC text", errName, t.Name)
	}
	if t.TotalShares <= 0 {
		return fmt.Errorf("%w: total_shares must be positive", errShares)
	}

	seen := make(map[string]string)
	check := func(role, addr string) error {
		if addr == "" {
			return fmt.Errorf("%w: %s is empty", errAddress, role)
		}
		if prev, dup := seen[addr]; dup {
			return fmt.Errorf("%w: %s and %s share %s", errAddress, prev, role, addr)
		}
		seen[addr] = role
		return checkAddress(network, role, addr)
	}
	for _, ka := range t.Addresses.ServiceAddresses() {
		if err := check(string(ka.Kind), ka.Address); err != nil {
			return err
		}
	}
	if err := check("issuer", t.Addresses.Issuer); err != nil {
		return err
	}

	var sum int64
	for addr, n := range t.Holders {
		if n <= 0 {
			return fmt.Errorf("%w: holder %s has %d shares", errShares, addr, n)
		}
		if err := checkAddress(network, "holder", addr); err != nil {
			return err
		}
		sum += n
	}
	if sum != t.TotalShares {
		return fmt.Errorf("%w: holders sum to %d, total_shares is %d", errShares, sum, t.TotalShares)
	}
	return nil
}

func checkAddress(network Network, role, addr string) error {
	if network == NetworkAny {
		return nil
	}
	_, version, err := base58.CheckDecode(addr)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errAddress, role, addr, err)
	}
	for _, v := range versionBytes[network] {
		if v == version {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s is not a %s address", errAddress, role, addr, network)
}

// Instantiate builds a fresh, paused asset from the template.
func (t Template) Instantiate() *ledger.Asset {
	return ledger.NewAsset(t.TotalShares, t.Addresses, t.Holders)
}

// Table maps init id to template.
type Table map[int64]Template

// Lookup returns the asset name and a fresh asset for init id.
func (t Table) Lookup(id int64) (string, *ledger.Asset, bool) {
	tmpl, ok := t[id]
	if !ok {
		return "", nil, false
	}
	return tmpl.Name, tmpl.Instantiate(), true
}

// Without returns a copy of the table minus the given ids.
func (t Table) Without(used []int64) Table {
	skip := make(map[int64]bool, len(used))
	for _, id := range used {
		skip[id] = true
	}
	out := make(Table, len(t))
	for id, tmpl := range t {
		if !skip[id] {
			out[id] = tmpl
		}
	}
	return out
}

// IDs returns the init ids in ascending order.
func (t Table) IDs() []int64 {
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Descriptions returns the asset descriptions keyed by asset name. When
// several templates share a name the highest init id wins.
func (t Table) Descriptions() map[string]string {
	out := make(map[string]string)
	for _, id := range t.IDs() {
		if d := t[id].Description; d != "" {
			out[t[id].Name] = d
		}
	}
	return out
}
