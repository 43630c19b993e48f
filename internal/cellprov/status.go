// Package cellprov resolves a transaction's inputs and cell dependencies
// against layered views of chain state. A CellProvider answers a single
// question — "what is the status of this OutPoint?" — and composes with
// other providers to model speculative, not-yet-committed state sitting on
// top of committed state.
package cellprov

import (
	"errors"
	"fmt"

	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// LiveCellKind distinguishes the cellbase's null marker from a real output.
type LiveCellKind uint8

const (
	// LiveNull is the null outpoint's permanent status: always live, never spendable.
	LiveNull LiveCellKind = iota
	// LiveOutput is a real, unspent cell.
	LiveOutput
)

// LiveCell is the payload of a Live CellStatus.
type LiveCell struct {
	Kind LiveCellKind
	Meta cell.CellMeta // zero value when Kind == LiveNull
}

// CellStatusKind tags the three possible resolutions of an OutPoint.
type CellStatusKind uint8

const (
	// StatusLive means the OutPoint currently has an unspent cell (or is null).
	StatusLive CellStatusKind = iota
	// StatusDead means the OutPoint was once live and has since been consumed.
	StatusDead
	// StatusUnknown means the OutPoint was never observed by this provider.
	StatusUnknown
)

// CellStatus is the resolution of one OutPoint against a CellProvider.
type CellStatus struct {
	Tag  CellStatusKind
	Live LiveCell
}

func Live(l LiveCell) CellStatus   { return CellStatus{Tag: StatusLive, Live: l} }
func Dead() CellStatus             { return CellStatus{Tag: StatusDead} }
func Unknown() CellStatus          { return CellStatus{Tag: StatusUnknown} }
func LiveOutputCell(m cell.CellMeta) CellStatus {
	return Live(LiveCell{Kind: LiveOutput, Meta: m})
}

func (s CellStatus) IsLive() bool    { return s.Tag == StatusLive }
func (s CellStatus) IsDead() bool    { return s.Tag == StatusDead }
func (s CellStatus) IsUnknown() bool { return s.Tag == StatusUnknown }

// UnresolvableKind distinguishes the two ways resolution can fail.
type UnresolvableKind uint8

const (
	UnresolvableDead UnresolvableKind = iota
	UnresolvableUnknown
)

func (k UnresolvableKind) String() string {
	if k == UnresolvableDead {
		return "dead"
	}
	return "unknown"
}

// UnresolvableError reports which OutPoint blocked resolution and why.
type UnresolvableError struct {
	Kind     UnresolvableKind
	OutPoint types.Outpoint
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("unresolvable (%s): %s", e.Kind, e.OutPoint)
}

// IsDead reports whether err is an UnresolvableError carrying UnresolvableDead.
func IsDead(err error) bool {
	var ue *UnresolvableError
	if errors.As(err, &ue) {
		return ue.Kind == UnresolvableDead
	}
	return false
}

// IsUnknown reports whether err is an UnresolvableError carrying UnresolvableUnknown.
func IsUnknown(err error) bool {
	var ue *UnresolvableError
	if errors.As(err, &ue) {
		return ue.Kind == UnresolvableUnknown
	}
	return false
}

// ResolvedTransaction pairs a transaction with the cells its deps and inputs
// resolved to. Both cell slices are parallel to, and exactly as long as,
// tx.Deps and tx.Inputs respectively, and preserve source order.
type ResolvedTransaction struct {
	Transaction *tx.Transaction
	DepCells    []cell.CellMeta
	InputCells  []cell.CellMeta
}

// IsDoubleSpend reports whether any two inputs of the resolved transaction
// spend the same OutPoint. Structural Validate already rejects this, but a
// ResolvedTransaction assembled by hand (tests, RPC probing) may skip it.
func (r *ResolvedTransaction) IsDoubleSpend() bool {
	seen := make(map[types.Outpoint]struct{}, len(r.Transaction.Inputs))
	for _, in := range r.Transaction.Inputs {
		if _, ok := seen[in.PrevOut]; ok {
			return true
		}
		seen[in.PrevOut] = struct{}{}
	}
	return false
}

// IsCellbaseMaturity reports whether every spent input cell that originated
// from a cellbase transaction has matured by currentNumber.
func (r *ResolvedTransaction) IsCellbaseMaturity(currentNumber, cellbaseMaturity uint64) bool {
	for _, m := range r.InputCells {
		if !m.IsMature(currentNumber, cellbaseMaturity) {
			return false
		}
	}
	return true
}
