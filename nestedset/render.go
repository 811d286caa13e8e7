package nestedset

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Render draws a reconstructed forest, one line per node with its bounds.
// Nodes are labelled by their "name" attribute, falling back to the ID.
func Render(roots []*Node) string {
	tp := treeprint.New()
	for _, n := range roots {
		addBranch(tp, n)
	}
	return tp.String()
}

func addBranch(tp treeprint.Tree, n *Node) {
	if len(n.Children) == 0 {
		tp.AddNode(label(n))
		return
	}
	branch := tp.AddBranch(label(n))
	for _, c := range n.Children {
		addBranch(branch, c)
	}
}

func label(n *Node) string {
	name := n.Attrs["name"]
	if name == "" {
		name = n.ID
	}
	if n.DeletedAt != nil {
		return fmt.Sprintf("%s [%d,%d] (trashed)", name, n.Lft, n.Rgt)
	}
	return fmt.Sprintf("%s [%d,%d]", name, n.Lft, n.Rgt)
}
