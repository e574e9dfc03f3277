package history

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// EditOp is the kind of a text edit.
type EditOp string

const (
	EditEqual  EditOp = "equal"
	EditInsert EditOp = "insert"
	EditDelete EditOp = "delete"
)

// TextEdit is one run of a prose diff.
type TextEdit struct {
	Op   EditOp `json:"op"`
	Text string `json:"text"`
}

// TextDiff compares two prose values and returns semantically cleaned edit
// runs. Concatenating the equal and delete runs yields before; equal and
// insert runs yield after.
func TextDiff(before, after string) []TextEdit {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := make([]TextEdit, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		var op EditOp
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = EditInsert
		case diffmatchpatch.DiffDelete:
			op = EditDelete
		default:
			op = EditEqual
		}
		out = append(out, TextEdit{Op: op, Text: d.Text})
	}
	return out
}

// InlineDiff renders a prose diff on one line, marking deletions as [-x-]
// and insertions as {+x+}.
func InlineDiff(before, after string) string {
	var b strings.Builder
	for _, e := range TextDiff(before, after) {
		switch e.Op {
		case EditInsert:
			b.WriteString("{+" + e.Text + "+}")
		case EditDelete:
			b.WriteString("[-" + e.Text + "-]")
		default:
			b.WriteString(e.Text)
		}
	}
	return b.String()
}
