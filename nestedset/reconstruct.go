package nestedset

import "slices"

// ToTree links nodes into the trees they form and returns the top-level nodes
// in lft order. The input slice and its nodes are not modified; the result
// holds copies.
//
// A node is attached to the nearest node of the input that contains it, but
// only if that node is its parent. If a node's parent was filtered out, the
// node and its subtree are dropped rather than promoted to an ancestor.
// Uncontained nodes are top-level when their depth is the smallest among
// uncontained nodes.
func ToTree(nodes []*Node) []*Node {
	sorted := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		c := n.Clone()
		c.Children = nil
		sorted = append(sorted, c)
	}
	SortNodes(sorted, []Order{{Column: ColLft}})

	type frame struct {
		node *Node
		kept bool
	}
	var (
		stack     []frame
		uncovered []*Node
	)
	for _, n := range sorted {
		for len(stack) > 0 && stack[len(stack)-1].node.Rgt < n.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			uncovered = append(uncovered, n)
			stack = append(stack, frame{node: n, kept: true})
			continue
		}
		top := stack[len(stack)-1]
		kept := top.kept && n.IsChildOf(top.node)
		if kept {
			top.node.Children = append(top.node.Children, n)
		}
		stack = append(stack, frame{node: n, kept: kept})
	}

	if len(uncovered) == 0 {
		return nil
	}
	minDepth := uncovered[0].Depth
	for _, n := range uncovered[1:] {
		minDepth = min(minDepth, n.Depth)
	}
	return slices.DeleteFunc(uncovered, func(n *Node) bool {
		return n.Depth != minDepth
	})
}

// ToDictionary indexes nodes by ID without linking them.
func ToDictionary(nodes []*Node) map[string]*Node {
	dict := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		dict[n.ID] = n
	}
	return dict
}

// Flatten lists a reconstructed forest in depth-first pre-order.
func Flatten(roots []*Node) []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(level []*Node) {
		for _, n := range level {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(roots)
	return out
}
