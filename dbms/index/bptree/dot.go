package bptree

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/btree-query-bench/strindex/dbms/index/btpage"
)

// ExportDOT writes the tree as a Graphviz digraph: one table per page,
// solid edges to children and dashed edges along the leaf chain.
func (t *BPTree) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "digraph BPTree {")
	// Layout and Global Styling
	fmt.Fprintln(bw, "  graph [ranksep=0.8, nodesep=0.5, bgcolor=\"#ffffff\", rankdir=TB];")
	fmt.Fprintln(bw, "  node [shape=none, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(bw, "  edge [arrowsize=0.8, color=\"#444444\"];")

	var leaves []*btpage.Node
	var exportRec func(id int64, depth int) error
	exportRec = func(id int64, depth int) error {
		if err := t.checkDepth(depth); err != nil {
			return err
		}
		n, err := t.readNode(id)
		if err != nil {
			return err
		}
		usedPct := float64(n.NumKeys()) / float64(t.order) * 100.0

		if n.Leaf {
			// LEAF NODE: Green Header
			label := fmt.Sprintf(`<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
				<TR><TD COLSPAN="2" BGCOLOR="#D5E8D4"><B>PAGE %d (LEAF)</B><BR/><FONT POINT-SIZE="8">Fill: %.1f%%</FONT></TD></TR>
				<TR><TD PORT="keys" BGCOLOR="#F5F5F5" ALIGN="LEFT">`, id, usedPct)
			for i, k := range n.Keys {
				label += fmt.Sprintf("<B>%s</B> <FONT COLOR='#666666'>@%d</FONT><BR/>", html.EscapeString(k.String()), n.Children[i])
			}
			nextLabel := "NULL"
			if n.NextLeaf != btpage.InvalidPage {
				nextLabel = fmt.Sprintf("%d", n.NextLeaf)
			}
			label += fmt.Sprintf(`</TD><TD PORT="next" BGCOLOR="#E1F5FE" VALIGN="MIDDLE">Next: %s</TD></TR></TABLE>>`, nextLabel)
			fmt.Fprintf(bw, "  page%d [label=%s];\n", id, label)
			leaves = append(leaves, n)
			return nil
		}

		// INTERNAL NODE: Blue Header
		label := fmt.Sprintf(`<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4">
				<TR><TD COLSPAN="%d" BGCOLOR="#DAE8FC"><B>PAGE %d (INTERNAL)</B><BR/><FONT POINT-SIZE="8">Fill: %.1f%%</FONT></TD></TR><TR>`, n.NumKeys()*2+1, id, usedPct)
		for i, k := range n.Keys {
			label += fmt.Sprintf(`<TD PORT="f%d" BGCOLOR="#E1F5FE">P:%d</TD><TD BGCOLOR="#FFFFFF"><B>%s</B></TD>`, i, n.Children[i], html.EscapeString(k.String()))
		}
		last := n.NumKeys()
		label += fmt.Sprintf(`<TD PORT="f%d" BGCOLOR="#E1F5FE">P:%d</TD></TR></TABLE>>`, last, n.Children[last])
		fmt.Fprintf(bw, "  page%d [label=%s];\n", id, label)

		for i, c := range n.Children {
			if err := exportRec(c, depth+1); err != nil {
				return err
			}
			fmt.Fprintf(bw, "  page%d:f%d -> page%d;\n", id, i, c)
		}
		return nil
	}

	if t.st.PageCount() > 0 {
		if err := exportRec(rootPage, 0); err != nil {
			return err
		}
	}

	// Link leaves horizontally
	if len(leaves) > 1 {
		fmt.Fprintln(bw, "  { rank=same;")
		for _, l := range leaves {
			fmt.Fprintf(bw, "    page%d;\n", l.Page)
		}
		fmt.Fprintln(bw, "  }")
		for _, l := range leaves {
			if l.NextLeaf != btpage.InvalidPage {
				fmt.Fprintf(bw, "  page%d:next -> page%d [style=dashed, color=\"#03A9F4\", constraint=false, tailclip=false];\n", l.Page, l.NextLeaf)
			}
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
