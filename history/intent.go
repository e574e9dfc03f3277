package history

import (
	"fmt"
	"strings"

	"github.com/kobst/project-apollo-sub005/graph"
)

// Describe summarizes a diff as a short imperative sentence, suitable as a
// version label when the author gave none.
func Describe(d *DiffResult) string {
	verb := describeVerb(d)

	switch {
	case len(d.Nodes.Added) > 0:
		return verb + " " + formatNames(nodeNames(d.Nodes.Added))
	case len(d.Nodes.Removed) > 0:
		return verb + " " + formatNames(nodeNames(d.Nodes.Removed))
	case len(d.Nodes.Modified) > 0:
		names := make([]string, len(d.Nodes.Modified))
		for i, m := range d.Nodes.Modified {
			names[i] = fmt.Sprintf("%s %s", m.Type, m.ID)
		}
		return verb + " " + formatNames(names)
	case len(d.Edges.Added) > 0:
		return verb + " " + formatNames(edgeNames(d.Edges.Added))
	case len(d.Edges.Removed) > 0:
		return verb + " " + formatNames(edgeNames(d.Edges.Removed))
	}
	return "No changes"
}

// describeVerb picks the verb from the most significant kind of change.
func describeVerb(d *DiffResult) string {
	nodesAdded := len(d.Nodes.Added) > 0
	nodesRemoved := len(d.Nodes.Removed) > 0
	edgesAdded := len(d.Edges.Added) > 0
	edgesRemoved := len(d.Edges.Removed) > 0

	if nodesAdded && nodesRemoved {
		return "Rework"
	}
	if nodesAdded {
		return "Add"
	}
	if nodesRemoved {
		return "Remove"
	}
	if len(d.Nodes.Modified) > 0 {
		return "Update"
	}
	if edgesAdded && edgesRemoved {
		return "Relink"
	}
	if edgesAdded {
		return "Connect"
	}
	if edgesRemoved {
		return "Disconnect"
	}
	return "Change"
}

func nodeNames(nodes []*graph.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		if label := n.Label(); label != n.ID {
			names[i] = fmt.Sprintf("%s %q", n.Type, label)
		} else {
			names[i] = fmt.Sprintf("%s %s", n.Type, n.ID)
		}
	}
	return names
}

func edgeNames(edges []*graph.Edge) []string {
	names := make([]string, len(edges))
	for i, e := range edges {
		names[i] = e.From + " -> " + e.To
	}
	return names
}

// formatNames formats a list of names for display.
func formatNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:2], ", ") + " and others"
}
