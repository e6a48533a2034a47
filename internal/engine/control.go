package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// createAsset registers the asset described by init data file_id.
// Only the open-exchange address may create assets. No refunds.
func createAsset(in *Instruction) (ledger.Request, error) {
	req := &ledger.CreateAsset{Header: in.header(ledger.KindCreateAsset)}
	req.FileID = in.Amount % OneHundredMillion

	if in.Sender != in.Exchange.OpenExchangeAddress {
		req.Reject(ledger.StatusFatal, ledger.MsgInputAddressNotLegit)
		return req, nil
	}
	name, asset, ok := in.Init.Lookup(req.FileID)
	if !ok {
		req.Reject(ledger.StatusFatal, ledger.MsgAssetInitDataNotFound)
		return req, nil
	}
	req.NewAssetName = name
	if _, exists := in.Exchange.Assets[name]; exists {
		req.Reject(ledger.StatusFatal, ledger.MsgAssetAlreadyRegistered)
		return req, nil
	}

	in.Exchange.Assets[name] = asset
	req.Status = ledger.StatusOK
	return req, nil
}

// exchangeStateControl pauses or resumes the exchange. No refunds.
func exchangeStateControl(in *Instruction) (ledger.Request, error) {
	req := &ledger.ExchangeStateControl{Header: in.header(ledger.KindExchangeStateControl)}
	req.RequestedState = in.Amount % OneHundredMillion

	if in.Sender != in.Exchange.OpenExchangeAddress {
		req.Reject(ledger.StatusFatal, ledger.MsgInputAddressNotLegit)
		return req, nil
	}
	switch req.RequestedState {
	case StateResume:
		in.Exchange.State = ledger.Running
	case StatePause:
		in.Exchange.State = ledger.Paused
	default:
		req.Reject(ledger.StatusFatal, ledger.MsgStateNotSupported)
		return req, nil
	}
	req.Status = ledger.StatusOK
	return req, nil
}

// assetStateControl pauses, resumes or reinitializes one asset. A
// reinitialization replaces the asset wholesale with a fresh instance of the
// init data and is only allowed while the asset is paused. The asset keeps
// its current name whatever name the init data was registered under. No
// refunds.
func assetStateControl(in *Instruction) (ledger.Request, error) {
	req := &ledger.AssetStateControl{Header: in.header(ledger.KindAssetStateControl)}
	code := in.Amount % OneHundredMillion
	req.RequestedState = code

	if in.Sender != in.Exchange.OpenExchangeAddress {
		req.Reject(ledger.StatusFatal, ledger.MsgInputAddressNotLegit)
		return req, nil
	}

	switch {
	case code == StateResume:
		in.Asset.State = ledger.Running
	case code == StatePause:
		in.Asset.State = ledger.Paused
	default:
		initID, ok := DecodeReinit(code)
		if !ok {
			req.Reject(ledger.StatusFatal, ledger.MsgStateNotSupported)
			return req, nil
		}
		if in.Asset.State == ledger.Running {
			req.Reject(ledger.StatusFatal, ledger.MsgCanNotReinitWhenRunning)
			return req, nil
		}
		_, fresh, ok := in.Init.Lookup(initID)
		if !ok {
			req.Reject(ledger.StatusFatal, ledger.MsgAssetInitDataNotFound)
			return req, nil
		}
		in.Exchange.Assets[in.AssetName] = fresh
	}
	req.Status = ledger.StatusOK
	return req, nil
}

// ReinitID returns the init id consumed by an accepted reinitialization.
func ReinitID(req *ledger.AssetStateControl) (int64, bool) {
	if req.Status != ledger.StatusOK {
		return 0, false
	}
	return DecodeReinit(req.RequestedState)
}
