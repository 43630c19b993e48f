package cellprov

import "github.com/nervosnetwork/ckb-go/pkg/types"

// OverlayCellProvider layers a primary provider over a fallback. A Live or
// Dead answer from primary is authoritative; only Unknown defers to
// fallback. Overlays compose associatively, so chaining them models a stack
// of speculative views — a transaction-local view over staging over
// committed chain state.
type OverlayCellProvider struct {
	Primary  CellProvider
	Fallback CellProvider
}

// NewOverlay builds an OverlayCellProvider from primary and fallback.
func NewOverlay(primary, fallback CellProvider) *OverlayCellProvider {
	return &OverlayCellProvider{Primary: primary, Fallback: fallback}
}

func (o *OverlayCellProvider) Cell(op types.Outpoint) CellStatus {
	status := o.Primary.Cell(op)
	if status.Tag != StatusUnknown {
		return status
	}
	return o.Fallback.Cell(op)
}
