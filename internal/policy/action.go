package policy

import (
	"fmt"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

// Kind enumerates the four memory mutations.
type Kind int

const (
	KindAdd Kind = iota
	KindUpdate
	KindDelete
	KindNone

	numKinds = 4
)

// String returns the uppercase wire label for the kind.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "ADD"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindNone:
		return "NONE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RequiresTarget reports whether the kind acts on an existing record.
func (k Kind) RequiresTarget() bool {
	return k == KindUpdate || k == KindDelete
}

// Action is a decision over a candidate fact. It is a tagged variant:
// Update and Delete carry the id of the record they act on, Add and
// None never do. Build actions through the constructors so the tag and
// target stay consistent.
type Action struct {
	kind   Kind
	target string
}

// Add inserts the candidate fact as a new record.
func Add() Action {
	return Action{kind: KindAdd}
}

// Update overwrites the record with the given id.
func Update(target string) Action {
	return Action{kind: KindUpdate, target: target}
}

// Delete removes the record with the given id.
func Delete(target string) Action {
	return Action{kind: KindDelete, target: target}
}

// None leaves the store untouched.
func None() Action {
	return Action{kind: KindNone}
}

// Kind returns the variant tag.
func (a Action) Kind() Kind {
	return a.kind
}

// Target returns the acted-on record id, empty for Add and None.
func (a Action) Target() string {
	return a.target
}

// String renders "ADD", "NONE", or "UPDATE(id)" / "DELETE(id)".
func (a Action) String() string {
	if a.kind.RequiresTarget() {
		return fmt.Sprintf("%s(%s)", a.kind, a.target)
	}
	return a.kind.String()
}

// ValidKinds returns the structurally valid kinds for a retrieval
// result: Update and Delete need at least one record to act on.
func ValidKinds(retrieved []memory.Retrieved) []Kind {
	if len(retrieved) == 0 {
		return []Kind{KindAdd, KindNone}
	}
	return []Kind{KindAdd, KindUpdate, KindDelete, KindNone}
}
