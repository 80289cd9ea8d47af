package store

import "context"

// Dispatch enqueues an action onto a Store.
type Dispatch[A any] func(action A)

// Flow is a long-running effect. It may call dispatch any number of times and
// should return once ctx is done.
type Flow[A any] func(ctx context.Context, dispatch Dispatch[A])

// Command describes work to perform after a state transition. The set of
// implementations is closed: None, Action, Batch and FlowCmd.
type Command[A any] interface {
	isCommand(A)
}

type noneCmd[A any] struct{}

type actionCmd[A any] struct {
	action A
}

type batchCmd[A any] struct {
	cmds []Command[A]
}

type flowCmd[A any] struct {
	flow Flow[A]
}

func (noneCmd[A]) isCommand(A)   {}
func (actionCmd[A]) isCommand(A) {}
func (batchCmd[A]) isCommand(A)  {}
func (flowCmd[A]) isCommand(A)   {}

// None is a command with no effect.
func None[A any]() Command[A] {
	return noneCmd[A]{}
}

// Action schedules a follow-up action, processed right after the state
// replacement that produced it.
func Action[A any](a A) Command[A] {
	return actionCmd[A]{action: a}
}

// Batch concatenates commands. Batches may nest.
func Batch[A any](cmds ...Command[A]) Command[A] {
	return batchCmd[A]{cmds: cmds}
}

// FlowCmd starts f as a background task.
func FlowCmd[A any](f Flow[A]) Command[A] {
	return flowCmd[A]{flow: f}
}

// Actions returns the immediate actions of cmd in pre-order.
func Actions[A any](cmd Command[A]) []A {
	var out []A
	walk[A](cmd, func(c Command[A]) {
		if a, ok := c.(actionCmd[A]); ok {
			out = append(out, a.action)
		}
	})
	return out
}

// Flows returns the flows of cmd in pre-order.
func Flows[A any](cmd Command[A]) []Flow[A] {
	var out []Flow[A]
	walk[A](cmd, func(c Command[A]) {
		if f, ok := c.(flowCmd[A]); ok {
			out = append(out, f.flow)
		}
	})
	return out
}

func walk[A any](cmd Command[A], visit func(Command[A])) {
	switch c := cmd.(type) {
	case nil, noneCmd[A]:
	case actionCmd[A], flowCmd[A]:
		visit(c)
	case batchCmd[A]:
		for _, sub := range c.cmds {
			walk[A](sub, visit)
		}
	default:
		panic("store: unknown command type")
	}
}
