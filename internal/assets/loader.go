package assets

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/stealth-startup/openexchange/internal/ledger"
)

//go:embed schema.cue
var schemaCUE string

// LoadError reports a template that failed to load or validate.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeNotFound   = "A001" // directory missing
	ErrCodeNoFiles    = "A002" // no .cue files
	ErrCodeLoadFailed = "A003" // CUE load or build failed
	ErrCodeSchema     = "A004" // template does not match schema
	ErrCodeInvalidID  = "A005" // init id out of range
	ErrCodeAddress    = "A006" // address malformed or colliding
	ErrCodeShares     = "A007" // holders do not add up
	ErrCodeName       = "A008" // asset name not normalized
)

// templateDoc mirrors #Template in schema.cue.
type templateDoc struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TotalShares int64            `json:"total_shares"`
	Addresses   addressesDoc     `json:"addresses"`
	Holders     map[string]int64 `json:"holders"`
}

type addressesDoc struct {
	LimitBuy     string `json:"limit_buy"`
	LimitSell    string `json:"limit_sell"`
	MarketBuy    string `json:"market_buy"`
	MarketSell   string `json:"market_sell"`
	ClearOrder   string `json:"clear_order"`
	Transfer     string `json:"transfer"`
	Pay          string `json:"pay"`
	CreateVote   string `json:"create_vote"`
	Vote         string `json:"vote"`
	StateControl string `json:"state_control"`
	Issuer       string `json:"issuer"`
}

// LoadDir loads every .cue file in dir as one CUE instance and validates the
// templates it declares for network.
func LoadDir(dir string, network Network) (Table, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("asset directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	return decode(ctx, value, network)
}

// LoadBytes loads templates from a single CUE document.
func LoadBytes(filename string, src []byte, network Network) (Table, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	return decode(ctx, value, network)
}

func decode(ctx *cue.Context, value cue.Value, network Network) (Table, error) {
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile asset schema: %w", err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: err.Error(), Pos: value.Pos()}
	}

	table := make(Table)
	assetsVal := value.LookupPath(cue.ParsePath("assets"))
	if !assetsVal.Exists() {
		return table, nil
	}
	iter, err := assetsVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("iterating assets: %v", err)}
	}
	for iter.Next() {
		label := iter.Label()
		id, err := strconv.ParseInt(label, 10, 64)
		if err != nil || id < 1 || id >= maxInitID {
			return nil, &LoadError{Code: ErrCodeInvalidID, Message: fmt.Sprintf("init id %q must be in [1, %d)", label, maxInitID), Pos: iter.Value().Pos()}
		}
		var doc templateDoc
		if err := iter.Value().Decode(&doc); err != nil {
			return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("asset %s: %v", label, err), Pos: iter.Value().Pos()}
		}
		tmpl := doc.template(id)
		if err := tmpl.Validate(network); err != nil {
			return nil, &LoadError{Code: codeOf(err), Message: fmt.Sprintf("asset %s: %v", label, err), Pos: iter.Value().Pos()}
		}
		table[id] = tmpl
	}
	return table, nil
}

func (d templateDoc) template(id int64) Template {
	return Template{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		TotalShares: d.TotalShares,
		Addresses:   d.Addresses.ledger(),
		Holders:     d.Holders,
	}
}

func (d addressesDoc) ledger() ledger.AssetAddresses {
	return ledger.AssetAddresses{
		LimitBuy:     d.LimitBuy,
		LimitSell:    d.LimitSell,
		MarketBuy:    d.MarketBuy,
		MarketSell:   d.MarketSell,
		ClearOrder:   d.ClearOrder,
		Transfer:     d.Transfer,
		Pay:          d.Pay,
		CreateVote:   d.CreateVote,
		Vote:         d.Vote,
		StateControl: d.StateControl,
		Issuer:       d.Issuer,
	}
}
