package processforest

import (
	"fmt"
	"strings"
)

// RenderIndented renders the forest with two-space indentation, one node per
// line: "label [icon] (pid N)".
func RenderIndented(forest []*EnrichedProcess) string {
	var result strings.Builder
	for _, node := range forest {
		renderIndentedRecursive(node, &result, 0)
	}
	return result.String()
}

func renderIndentedRecursive(node *EnrichedProcess, result *strings.Builder, depth int) {
	result.WriteString(strings.Repeat("  ", depth))
	result.WriteString(fmt.Sprintf("%s [%s] (pid %d)\n", node.Label, node.Icon, node.Record.PID))
	for _, child := range node.Children {
		renderIndentedRecursive(child, result, depth+1)
	}
}

// RenderOneLine renders one branch in a single line for logs.
// Format: "label(pid,ppid) -> child(pid,ppid) | label(pid,ppid) -> sibling(pid,ppid)"
func RenderOneLine(node *EnrichedProcess) string {
	if node == nil {
		return "nil"
	}
	var result strings.Builder
	renderOneLineRecursive(node, &result, 0)
	return result.String()
}

func renderOneLineRecursive(node *EnrichedProcess, result *strings.Builder, depth int) {
	if depth > 0 {
		result.WriteString(" -> ")
	}
	result.WriteString(nodeTag(node))

	switch len(node.Children) {
	case 0:
	case 1:
		renderOneLineRecursive(node.Children[0], result, depth+1)
	default:
		for i, child := range node.Children {
			if i > 0 {
				result.WriteString(" | ")
				result.WriteString(nodeTag(node))
				result.WriteString(" -> ")
				renderOneLineRecursive(child, result, 0)
				continue
			}
			renderOneLineRecursive(child, result, depth+1)
		}
	}
}

func nodeTag(node *EnrichedProcess) string {
	if node.Label != "" {
		return fmt.Sprintf("%s(%d,%d)", node.Label, node.Record.PID, node.Record.PPID)
	}
	return fmt.Sprintf("pid(%d,%d)", node.Record.PID, node.Record.PPID)
}
