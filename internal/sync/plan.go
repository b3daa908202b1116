package sync

// Side identifies one of the two synchronized roots. Sides keep the order
// the user gave on the command line; only lock and store identity are
// order-independent.
type Side int

const (
	Side1 Side = 1
	Side2 Side = 2
)

func (s Side) Other() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

type OpType string

const (
	OpCopyToPath1 OpType = "CopyToPath1"
	OpCopyToPath2 OpType = "CopyToPath2"
	OpDeletePath1 OpType = "DeletePath1"
	OpDeletePath2 OpType = "DeletePath2"
	OpConflict    OpType = "Conflict"
)

// Operation is a single step of a transfer plan. Source is the side whose
// observation caused the operation. Conflict operations carry both sides'
// records and are never applied.
type Operation struct {
	Type    OpType
	Path    string
	Source  Side
	Record1 *FileRecord
	Record2 *FileRecord
}

// IsDelete reports whether the operation removes a file.
func (o *Operation) IsDelete() bool {
	return o.Type == OpDeletePath1 || o.Type == OpDeletePath2
}

// TransferPlan is an ordered sequence of operations. Deletions come before
// copies so a name freed in this pass can be reused by a copy in the same
// pass; conflicts trail the plan since they are report-only.
type TransferPlan struct {
	Ops []Operation
}

func (p *TransferPlan) IsEmpty() bool {
	return len(p.Ops) == 0
}

// Conflicts returns the conflict operations in plan order.
func (p *TransferPlan) Conflicts() []Operation {
	var conflicts []Operation
	for _, op := range p.Ops {
		if op.Type == OpConflict {
			conflicts = append(conflicts, op)
		}
	}
	return conflicts
}

// Transfers counts the operations that move or remove data.
func (p *TransferPlan) Transfers() int {
	n := 0
	for _, op := range p.Ops {
		if op.Type != OpConflict {
			n++
		}
	}
	return n
}
