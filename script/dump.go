package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xlab/treeprint"
)

// Dump renders prog as an indented tree, one branch per statement.
func Dump(prog *Program) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("program (%s)", prog.Dialect))
	dumpBlock(tree, prog.Body)
	return tree.String()
}

func dumpBlock(t treeprint.Tree, body []Stmt) {
	for _, s := range body {
		dumpStmt(t, s)
	}
}

func dumpStmt(t treeprint.Tree, s Stmt) {
	line := s.Pos().Line
	switch s := s.(type) {
	case *ExprStmt:
		t.AddNode(fmt.Sprintf("%d: %s", line, exprString(s.X)))
	case *Assign:
		vals := make([]string, len(s.Values))
		for i, v := range s.Values {
			vals[i] = exprString(v)
		}
		t.AddNode(fmt.Sprintf("%d: %s = %s", line, strings.Join(s.Targets, ", "), strings.Join(vals, ", ")))
	case *AugAssign:
		t.AddNode(fmt.Sprintf("%d: %s %s= %s", line, s.Target, s.Op, exprString(s.Value)))
	case *If:
		kw := "if"
		if s.Negate {
			kw = "unless"
		}
		b := t.AddBranch(fmt.Sprintf("%d: %s %s", line, kw, exprString(s.Test)))
		dumpBlock(b.AddBranch("then"), s.Then)
		if len(s.Else) > 0 {
			dumpBlock(b.AddBranch("else"), s.Else)
		}
	case *While:
		kw := "while"
		if s.Negate {
			kw = "until"
		}
		dumpBlock(t.AddBranch(fmt.Sprintf("%d: %s %s", line, kw, exprString(s.Test))), s.Body)
	case *For:
		dumpBlock(t.AddBranch(fmt.Sprintf("%d: for %s in %s", line, s.Var, exprString(s.Iter))), s.Body)
	case *FuncDef:
		params := make([]string, len(s.Params))
		for i, p := range s.Params {
			params[i] = p.Name
			if p.Default != nil {
				params[i] += "=" + exprString(p.Default)
			}
		}
		dumpBlock(t.AddBranch(fmt.Sprintf("%d: def %s(%s)", line, s.Name, strings.Join(params, ", "))), s.Body)
	case *Return:
		if s.Value == nil {
			t.AddNode(fmt.Sprintf("%d: return", line))
		} else {
			t.AddNode(fmt.Sprintf("%d: return %s", line, exprString(s.Value)))
		}
	case *Break:
		t.AddNode(fmt.Sprintf("%d: break", line))
	case *Continue:
		t.AddNode(fmt.Sprintf("%d: continue", line))
	case *Pass:
		t.AddNode(fmt.Sprintf("%d: pass", line))
	case *Global:
		t.AddNode(fmt.Sprintf("%d: global %s", line, strings.Join(s.Names, ", ")))
	default:
		t.AddNode(fmt.Sprintf("%d: %T", line, s))
	}
}

// exprString renders x fully parenthesized.
func exprString(x Expr) string {
	switch x := x.(type) {
	case *IntLit:
		return strconv.FormatInt(x.Value, 10)
	case *FloatLit:
		return strconv.FormatFloat(x.Value, 'g', -1, 64)
	case *StrLit:
		return strconv.Quote(x.Value)
	case *BoolLit:
		return strconv.FormatBool(x.Value)
	case *NoneLit:
		return "none"
	case *Interp:
		var b strings.Builder
		b.WriteString("interp(")
		for i, p := range x.Parts {
			if i > 0 {
				b.WriteString(", ")
			}
			if p.Expr == nil {
				b.WriteString(strconv.Quote(p.Lit))
				continue
			}
			b.WriteString("{" + exprString(p.Expr))
			if p.Conv != 0 {
				b.WriteString("!" + string(p.Conv))
			}
			if p.Spec != "" {
				b.WriteString(":" + p.Spec)
			}
			b.WriteString("}")
		}
		b.WriteString(")")
		return b.String()
	case *Name:
		return x.Name
	case *Unary:
		if x.Op == "not" {
			return "(not " + exprString(x.X) + ")"
		}
		return "(" + x.Op + exprString(x.X) + ")"
	case *Binary:
		return "(" + exprString(x.X) + " " + x.Op + " " + exprString(x.Y) + ")"
	case *Logical:
		return "(" + exprString(x.X) + " " + x.Op + " " + exprString(x.Y) + ")"
	case *Compare:
		var b strings.Builder
		b.WriteString("(" + exprString(x.Operands[0]))
		for i, op := range x.Ops {
			b.WriteString(" " + op + " " + exprString(x.Operands[i+1]))
		}
		b.WriteString(")")
		return b.String()
	case *Cond:
		return "(" + exprString(x.Then) + " if " + exprString(x.Test) + " else " + exprString(x.Else) + ")"
	case *Call:
		args := make([]string, 0, len(x.Args)+len(x.Kwargs))
		for _, a := range x.Args {
			args = append(args, exprString(a))
		}
		for _, kw := range x.Kwargs {
			args = append(args, kw.Name+"="+exprString(kw.Value))
		}
		return exprString(x.Fn) + "(" + strings.Join(args, ", ") + ")"
	case *RangeLit:
		op := "..."
		if x.Inclusive {
			op = ".."
		}
		return "(" + exprString(x.Start) + op + exprString(x.Stop) + ")"
	}
	return fmt.Sprintf("%T", x)
}
