package console

// Phase is where the console is in the edit/commit cycle.
//
//	Idle ──stage──▶ Editing ──commit──▶ Committing ──write ok──▶ Reconciling ──▶ Idle
//	                   ▲                    │                          │
//	                   └──── write failed ──┘◀── edits left staged ────┘
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEditing
	PhaseCommitting
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseEditing:
		return "editing"
	case PhaseCommitting:
		return "committing"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}
