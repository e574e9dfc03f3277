package history

import "sort"

// LogEntry is one version in a log walk.
type LogEntry struct {
	Version   *Version `json:"version"`
	IsCurrent bool     `json:"isCurrent"`
	Branches  []string `json:"branches,omitempty"`
}

// Log walks parent pointers back from the current version, newest first.
// A limit of zero or less returns the whole ancestry.
func (h *History) Log(limit int) []LogEntry {
	heads := make(map[string][]string)
	for name, b := range h.Branches {
		heads[b.Head] = append(heads[b.Head], name)
	}

	var out []LogEntry
	for id := h.CurrentVersionID; id != ""; {
		if (limit > 0 && len(out) >= limit) || len(out) >= len(h.Versions) {
			break
		}
		v, ok := h.Versions[id]
		if !ok {
			break
		}
		names := heads[id]
		sort.Strings(names)
		out = append(out, LogEntry{Version: v, IsCurrent: id == h.CurrentVersionID, Branches: names})
		id = v.ParentID
	}
	return out
}

// Children returns the IDs of versions whose parent is id, oldest first.
func (h *History) Children(id string) []string {
	var out []string
	for cid, v := range h.Versions {
		if v.ParentID == id {
			out = append(out, cid)
		}
	}
	sort.Strings(out)
	return out
}
