package codegen

import (
	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/ir"
)

// chain is an open short-circuit And/Or expression. Every operand jumps to
// skip as soon as it decides the result; the last operand closes the chain
// by materializing 0 or 1. A barrier entry hides the chains below it.
type chain struct {
	op       ir.Op
	expected int
	count    int
	start    classfile.Label
	skip     classfile.Label
	end      classfile.Label
	barrier  bool
}

func (g *JVM) openChain(op ir.Op) {
	if top := g.topChain(); top != nil && top.op == op {
		top.expected++
		return
	}
	code := g.mustCode("chain")
	ch := &chain{
		op:       op,
		expected: 2,
		start:    code.NewLabel(),
		skip:     code.NewLabel(),
		end:      code.NewLabel(),
	}
	code.Mark(ch.start)
	g.chains = append(g.chains, ch)
}

// topChain is the innermost visible chain, nil under a barrier.
func (g *JVM) topChain() *chain {
	if len(g.chains) == 0 {
		return nil
	}
	ch := g.chains[len(g.chains)-1]
	if ch.barrier {
		return nil
	}
	return ch
}

// connect consumes the boolean on top of the stack as the next operand of
// the innermost chain, if there is one.
func (g *JVM) connect() {
	ch := g.topChain()
	if ch == nil {
		return
	}
	code := g.code
	ch.count++
	if ch.op == ir.Or {
		code.Jump(classfile.Ifne, ch.skip)
	} else {
		code.Jump(classfile.Ifeq, ch.skip)
	}
	if ch.count < ch.expected {
		return
	}

	g.chains = g.chains[:len(g.chains)-1]
	skipped := ch.op == ir.Or
	code.PushBool(!skipped)
	code.Goto(ch.end)
	code.MarkFrom(ch.skip, ch.start)
	code.PushBool(skipped)
	code.Mark(ch.end)
	g.connect()
}

func (g *JVM) Connect() {
	g.mustCode("connect")
	g.connect()
}

func (g *JVM) SuspendChains() {
	g.chains = append(g.chains, &chain{barrier: true})
}

func (g *JVM) ResumeChains() {
	if len(g.chains) == 0 || !g.chains[len(g.chains)-1].barrier {
		fail("resume chains", ErrUnbalanced, "no suspended chain context")
	}
	g.chains = g.chains[:len(g.chains)-1]
}
