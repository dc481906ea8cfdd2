package ui

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/chazu/kryon/vm"
)

// Render writes an indented outline of the attached tree, one component
// per line:
//
//	Column#1
//	  Text#2 "count: 3" font_size=16
//	  Button#7 "+" (hidden)
func (t *Tree) Render(w io.Writer) error {
	if t.root == nil {
		_, err := io.WriteString(w, "(empty)\n")
		return err
	}
	var sb strings.Builder
	renderComponent(&sb, t.root, 0)
	_, err := io.WriteString(w, sb.String())
	return err
}

func renderComponent(sb *strings.Builder, c *Component, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(sb, "%s#%d", c.Type, c.ID)
	if c.Text != "" {
		fmt.Fprintf(sb, " %q", c.Text)
	}
	if c.Hidden {
		sb.WriteString(" (hidden)")
	}

	ids := make([]vm.PropertyID, 0, len(c.Props))
	for id := range c.Props {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(sb, " %s=%s", id, c.Props[id].Value())
	}
	sb.WriteByte('\n')

	for _, child := range c.Children {
		renderComponent(sb, child, depth+1)
	}
}
