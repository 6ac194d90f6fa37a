package resolver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of a resolved tree.
// Conflicting libraries are filled red, unresolved nodes gray.
func ExportDOT(result *TaskResult) string {
	conflicted := make(map[string]bool, len(result.Conflicts))
	for _, c := range result.Conflicts {
		conflicted[nodeKey(c.Ecosystem, c.Name)] = true
	}

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" shape=box];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	declared := make(map[string]bool)
	var walk func(n *DependencyInfo)
	walk = func(n *DependencyInfo) {
		id := nodeKey(n.Ecosystem, n.Name)
		if !declared[id] {
			declared[id] = true
			label := n.Name
			if n.ResolvedVersion != "" {
				label += "@" + n.ResolvedVersion
			}
			attrs := ""
			switch {
			case conflicted[id]:
				attrs = " style=filled fillcolor=\"#f85149\""
			case n.Unresolved:
				attrs = " style=filled fillcolor=\"#8b949e\""
			}
			b.WriteString(fmt.Sprintf("  %q [label=%q%s];\n", id, label, attrs))
		}
		for _, dep := range n.Dependencies {
			walk(dep)
		}
	}
	walk(result.Tree)
	b.WriteString("\n")

	var edges func(n *DependencyInfo)
	edges = func(n *DependencyInfo) {
		from := nodeKey(n.Ecosystem, n.Name)
		for _, dep := range n.Dependencies {
			label := ""
			if dep.Constraint != "" {
				label = fmt.Sprintf(" [label=%q]", dep.Constraint)
			}
			b.WriteString(fmt.Sprintf("  %q -> %q%s;\n", from, nodeKey(dep.Ecosystem, dep.Name), label))
			edges(dep)
		}
	}
	edges(result.Tree)

	b.WriteString("}\n")
	return b.String()
}

// ExportJSON serializes a result to indented JSON.
func ExportJSON(result *TaskResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
