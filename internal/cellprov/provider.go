package cellprov

import (
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// CellProvider answers the status of a single OutPoint. Implementations
// never need to special-case the null OutPoint themselves — GetCellStatus
// below does that uniformly.
type CellProvider interface {
	Cell(op types.Outpoint) CellStatus
}

// CellProviderFunc adapts a plain function to a CellProvider.
type CellProviderFunc func(op types.Outpoint) CellStatus

func (f CellProviderFunc) Cell(op types.Outpoint) CellStatus { return f(op) }

// GetCellStatus wraps a CellProvider so the null OutPoint always resolves to
// Live(Null) without the provider needing to know about cellbase markers.
func GetCellStatus(p CellProvider, op types.Outpoint) CellStatus {
	if op.IsNull() {
		return Live(LiveCell{Kind: LiveNull})
	}
	return p.Cell(op)
}

// ResolveTransaction maps every input and every dep of t through p,
// collecting parallel cell slices. Inputs and deps resolve independently,
// but Dead always outranks Unknown: resolution only fails fast on the first
// Dead outpoint encountered (inputs first, then deps); a Dead anywhere in
// the transaction wins over an Unknown seen earlier in scan order, so every
// input and dep must be visited before an Unknown failure can be returned.
func ResolveTransaction(p CellProvider, t *tx.Transaction) (*ResolvedTransaction, error) {
	inputCells := make([]cell.CellMeta, 0, len(t.Inputs))
	var firstUnknown *UnresolvableError

	for _, in := range t.Inputs {
		status := GetCellStatus(p, in.PrevOut)
		switch status.Tag {
		case StatusDead:
			return nil, &UnresolvableError{Kind: UnresolvableDead, OutPoint: in.PrevOut}
		case StatusUnknown:
			if firstUnknown == nil {
				firstUnknown = &UnresolvableError{Kind: UnresolvableUnknown, OutPoint: in.PrevOut}
			}
			continue
		}
		inputCells = append(inputCells, status.Live.Meta)
	}

	depCells := make([]cell.CellMeta, 0, len(t.Deps))
	for _, dep := range t.Deps {
		status := GetCellStatus(p, dep)
		switch status.Tag {
		case StatusDead:
			return nil, &UnresolvableError{Kind: UnresolvableDead, OutPoint: dep}
		case StatusUnknown:
			if firstUnknown == nil {
				firstUnknown = &UnresolvableError{Kind: UnresolvableUnknown, OutPoint: dep}
			}
			continue
		}
		depCells = append(depCells, status.Live.Meta)
	}

	if firstUnknown != nil {
		return nil, firstUnknown
	}

	return &ResolvedTransaction{
		Transaction: t,
		DepCells:    depCells,
		InputCells:  inputCells,
	}, nil
}
