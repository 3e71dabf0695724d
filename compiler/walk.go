package compiler

// Walk visits n and its descendants depth-first. pre is called before a
// node's children and may return false to skip them; post, if non-nil, is
// called after them.
func Walk(n Node, pre func(Node) bool, post func(Node)) {
	if n == nil {
		return
	}
	if pre != nil && !pre(n) {
		return
	}
	for _, c := range children(n) {
		Walk(c, pre, post)
	}
	if post != nil {
		post(n)
	}
}

func stmts(list []Stmt) []Node {
	out := make([]Node, 0, len(list))
	for _, s := range list {
		out = append(out, s)
	}
	return out
}

func exprs(list ...Expr) []Node {
	out := make([]Node, 0, len(list))
	for _, e := range list {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// children returns the direct children of n in source order.
func children(n Node) []Node {
	switch n := n.(type) {
	case *ProgramNode:
		var out []Node
		for _, t := range n.Types {
			out = append(out, t)
		}
		out = append(out, stmts(n.Statements)...)
		for _, f := range n.Functions {
			out = append(out, f)
		}
		return out
	case *IndexExpr:
		return append([]Node{n.Array}, exprs(n.Indices...)...)
	case *FieldExpr:
		return exprs(n.X)
	case *UnaryExpr:
		return exprs(n.X)
	case *BinaryExpr:
		return exprs(n.X, n.Y)
	case *AddrOfExpr:
		return exprs(n.X)
	case *DerefExpr:
		return exprs(n.X)
	case *CallExpr:
		return exprs(n.Args...)
	case *CommandExpr:
		return exprs(n.Args...)
	case *AssignStmt:
		return exprs(n.Target, n.Value)
	case *DeclStmt:
		return exprs(n.Name, n.Init)
	case *DimStmt:
		return append([]Node{n.Name}, exprs(n.Dims...)...)
	case *IfStmt:
		return append(append(exprs(n.Cond), stmts(n.Then)...), stmts(n.Else)...)
	case *WhileStmt:
		return append(exprs(n.Cond), stmts(n.Body)...)
	case *DoStmt:
		return stmts(n.Body)
	case *RepeatStmt:
		return append(stmts(n.Body), exprs(n.Cond)...)
	case *ForStmt:
		return append(exprs(n.Var, n.From, n.To, n.Step), stmts(n.Body)...)
	case *SelectStmt:
		out := exprs(n.Subject)
		for _, c := range n.Cases {
			out = append(out, c)
		}
		return out
	case *CaseClause:
		return append(exprs(n.Values...), stmts(n.Body)...)
	case *FuncDecl:
		var out []Node
		for _, p := range n.Params {
			out = append(out, p.Name)
		}
		out = append(out, stmts(n.Body)...)
		return append(out, exprs(n.Result)...)
	case *ExitFunctionStmt:
		return exprs(n.Value)
	case *TypeDecl:
		out := make([]Node, 0, len(n.Fields))
		for _, f := range n.Fields {
			out = append(out, f)
		}
		return out
	case *CommandStmt:
		return []Node{n.Call}
	case *CallStmt:
		return []Node{n.Call}
	}
	return nil
}
