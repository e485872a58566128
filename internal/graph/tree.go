package graph

import (
	"fmt"
	"io"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// Node is one position in a printed dependency tree. A bundle reachable along
// several paths is expanded once; later occurrences are marked Deduped.
type Node struct {
	ID       string
	Children []*Node
	Deduped  bool
	Missing  bool
}

// Tree expands root into a dependency tree.
func (g *Graph) Tree(root string) (*Node, error) {
	if !g.Has(root) {
		return nil, fmt.Errorf("%w: %s", bundle.ErrUnknownBundle, root)
	}
	seen := make(map[string]bool)
	return g.buildNode(root, seen), nil
}

func (g *Graph) buildNode(id string, seen map[string]bool) *Node {
	node := &Node{ID: id}
	if !g.Has(id) {
		node.Missing = true
		return node
	}
	if seen[id] {
		node.Deduped = true
		return node
	}
	seen[id] = true

	for _, dep := range g.deps[id] {
		node.Children = append(node.Children, g.buildNode(dep, seen))
	}
	return node
}

// PrintTree prints the dependency tree with box-drawing characters.
func PrintTree(w io.Writer, root *Node) {
	printNode(w, root, "", true)
}

func printNode(w io.Writer, node *Node, prefix string, isLast bool) {
	if node == nil {
		return
	}

	connector := "├── "
	if isLast {
		connector = "└── "
	}

	label := node.ID
	if node.Deduped {
		label += " (deduped)"
	} else if node.Missing {
		label += " (missing)"
	}

	if prefix == "" {
		fmt.Fprintf(w, "%s\n", label)
	} else {
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, label)
	}

	childPrefix := prefix
	if prefix == "" {
		childPrefix = " "
	} else if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	for i, child := range node.Children {
		printNode(w, child, childPrefix, i == len(node.Children)-1)
	}
}
