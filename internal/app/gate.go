package app

import "encryptedpoker/internal/state"

// EligibilityGate answers membership checks for token-gated tables. The core
// only needs a boolean; where the balance lives is a deployment concern.
type EligibilityGate interface {
	Eligible(st *state.State, asset, holder string, minAmount uint64) bool
}

// assetGate answers from the in-state asset map (dev deployments fund it via
// bank/mint_asset).
type assetGate struct{}

func (assetGate) Eligible(st *state.State, asset, holder string, minAmount uint64) bool {
	return st.AssetBalance(asset, holder) >= minAmount
}
