package action

import (
	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// Composite runs its actions in order, stopping at the first failure. The
// context value is not used during execution; it keeps alive whatever the
// composite's setup shared by reference between the actions (for example a
// table ref a create action fills and a follow-up insert reads).
type Composite struct {
	ctx     any
	actions []Action
}

// NewComposite builds a composite over the given actions.
func NewComposite(ctx any, actions ...Action) *Composite {
	return &Composite{ctx: ctx, actions: actions}
}

func (c *Composite) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	for _, a := range c.actions {
		if err := a.Execute(cat, rnd, conn); err != nil {
			return err
		}
	}
	return nil
}

// Repeat runs the wrapped action a fixed number of times.
type Repeat struct {
	action Action
	count  int
}

// NewRepeat wraps an action with a repeat count.
func NewRepeat(a Action, count int) *Repeat {
	return &Repeat{action: a, count: count}
}

func (r *Repeat) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	for i := 0; i < r.count; i++ {
		if err := r.action.Execute(cat, rnd, conn); err != nil {
			return err
		}
	}
	return nil
}
