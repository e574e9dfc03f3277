package history

import (
	"strings"
	"testing"
)

func TestTextDiff_Reconstructs(t *testing.T) {
	before := "Mara works alone at the mill before dawn."
	after := "Mara and Ode work at the mill before dawn, arguing."

	var gotBefore, gotAfter strings.Builder
	for _, e := range TextDiff(before, after) {
		if e.Op != EditInsert {
			gotBefore.WriteString(e.Text)
		}
		if e.Op != EditDelete {
			gotAfter.WriteString(e.Text)
		}
	}
	if gotBefore.String() != before {
		t.Errorf("before = %q, want %q", gotBefore.String(), before)
	}
	if gotAfter.String() != after {
		t.Errorf("after = %q, want %q", gotAfter.String(), after)
	}
}

func TestInlineDiff(t *testing.T) {
	for _, tc := range []struct{ before, after, want string }{
		{"same", "same", "same"},
		{"", "new", "{+new+}"},
		{"gone", "", "[-gone-]"},
	} {
		if got := InlineDiff(tc.before, tc.after); got != tc.want {
			t.Errorf("InlineDiff(%q, %q) = %q, want %q", tc.before, tc.after, got, tc.want)
		}
	}

	got := InlineDiff("The mill burns.", "The barn burns.")
	if !strings.HasPrefix(got, "The ") || !strings.HasSuffix(got, " burns.") {
		t.Errorf("unchanged text not kept: %q", got)
	}
	if !strings.Contains(got, "[-") || !strings.Contains(got, "{+") {
		t.Errorf("missing edit markers: %q", got)
	}
}
