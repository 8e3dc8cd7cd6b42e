package hast

// WalkStatus tells Walk how to proceed after visiting a node.
type WalkStatus int

const (
	// WalkContinue descends into the node's children.
	WalkContinue WalkStatus = iota
	// WalkSkipChildren moves on to the next sibling.
	WalkSkipChildren
	// WalkStop ends the traversal.
	WalkStop
)

// Visitor receives every node of a tree in document (pre-order) order.
// parent is nil only for the node Walk was started on.
type Visitor interface {
	VisitRoot(n *Node) (WalkStatus, error)
	VisitElement(n, parent *Node) (WalkStatus, error)
	VisitText(n, parent *Node) (WalkStatus, error)
	VisitRaw(n, parent *Node) (WalkStatus, error)
	VisitESM(n, parent *Node) (WalkStatus, error)
}

// VisitorFuncs adapts optional per-kind functions to a Visitor.
// Nil functions continue the walk.
type VisitorFuncs struct {
	Root    func(n *Node) (WalkStatus, error)
	Element func(n, parent *Node) (WalkStatus, error)
	Text    func(n, parent *Node) (WalkStatus, error)
	Raw     func(n, parent *Node) (WalkStatus, error)
	ESM     func(n, parent *Node) (WalkStatus, error)
}

var _ Visitor = VisitorFuncs{}

// VisitRoot implements Visitor.
func (f VisitorFuncs) VisitRoot(n *Node) (WalkStatus, error) {
	if f.Root == nil {
		return WalkContinue, nil
	}
	return f.Root(n)
}

// VisitElement implements Visitor.
func (f VisitorFuncs) VisitElement(n, parent *Node) (WalkStatus, error) {
	if f.Element == nil {
		return WalkContinue, nil
	}
	return f.Element(n, parent)
}

// VisitText implements Visitor.
func (f VisitorFuncs) VisitText(n, parent *Node) (WalkStatus, error) {
	if f.Text == nil {
		return WalkContinue, nil
	}
	return f.Text(n, parent)
}

// VisitRaw implements Visitor.
func (f VisitorFuncs) VisitRaw(n, parent *Node) (WalkStatus, error) {
	if f.Raw == nil {
		return WalkContinue, nil
	}
	return f.Raw(n, parent)
}

// VisitESM implements Visitor.
func (f VisitorFuncs) VisitESM(n, parent *Node) (WalkStatus, error) {
	if f.ESM == nil {
		return WalkContinue, nil
	}
	return f.ESM(n, parent)
}

// Walk traverses the tree rooted at n depth-first, pre-order.
func Walk(n *Node, v Visitor) error {
	_, err := walk(n, nil, v)
	return err
}

// Elements calls fn for every element in document order.
func Elements(n *Node, fn func(el, parent *Node) error) error {
	return Walk(n, VisitorFuncs{Element: func(el, parent *Node) (WalkStatus, error) {
		return WalkContinue, fn(el, parent)
	}})
}

func walk(n, parent *Node, v Visitor) (WalkStatus, error) {
	if n == nil {
		return WalkContinue, nil
	}

	var (
		status WalkStatus
		err    error
	)
	switch n.Kind {
	case KindRoot:
		status, err = v.VisitRoot(n)
	case KindElement:
		status, err = v.VisitElement(n, parent)
	case KindText:
		status, err = v.VisitText(n, parent)
	case KindRaw:
		status, err = v.VisitRaw(n, parent)
	case KindESM:
		status, err = v.VisitESM(n, parent)
	}
	if err != nil || status == WalkStop {
		return WalkStop, err
	}
	if status == WalkSkipChildren {
		return WalkContinue, nil
	}

	for _, child := range n.Children {
		if s, err := walk(child, n, v); err != nil || s == WalkStop {
			return WalkStop, err
		}
	}
	return WalkContinue, nil
}
