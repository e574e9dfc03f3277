// Package history keeps the version tree of a story: immutable snapshots
// linked by parent pointers, named branches pointing into the tree, and a
// current position that is either attached to a branch or detached.
package history

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/graph"
)

// DefaultBranch is the branch created with a new history.
const DefaultBranch = "main"

// minPrefix is the shortest version ID prefix accepted by Resolve.
const minPrefix = 6

var (
	ErrBranchExists     = errors.New("branch already exists")
	ErrBranchCheckedOut = errors.New("branch is checked out")
	ErrInvalidBranch    = errors.New("invalid branch name")
)

var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// Version is an immutable snapshot plus where it came from.
type Version struct {
	ID        string       `json:"id"`
	ParentID  string       `json:"parentId,omitempty"`
	Label     string       `json:"label"`
	CreatedAt int64        `json:"createdAt"`
	Digest    string       `json:"digest"`
	Graph     *graph.State `json:"graph"`
}

// Branch is a named, movable pointer to a version.
type Branch struct {
	Name      string `json:"name"`
	Head      string `json:"head"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// History is the version tree of one story.
type History struct {
	Versions         map[string]*Version `json:"versions"`
	Branches         map[string]*Branch  `json:"branches"`
	CurrentVersionID string              `json:"currentVersionId"`
	// CurrentBranch is empty when the history is detached.
	CurrentBranch string `json:"currentBranch,omitempty"`
}

// NotFoundError indicates a version or branch reference did not resolve.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Input)
}

// AmbiguityError indicates a version ID prefix matches several versions.
type AmbiguityError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous prefix '%s' matches:\n  %s\nprovide more characters or use a branch name",
		e.Prefix, strings.Join(e.Candidates, "\n  "))
}

// StaleParentError is returned by CommitIfHead when the history moved since
// the caller read it.
type StaleParentError struct {
	Expected string
	Actual   string
}

func (e *StaleParentError) Error() string {
	return fmt.Sprintf("stale parent: expected current version %s, found %s", e.Expected, e.Actual)
}

// New creates a history whose root version holds g, with DefaultBranch
// attached to it.
func New(g *graph.State, label string) (*History, error) {
	v, err := newVersion("", label, g)
	if err != nil {
		return nil, err
	}
	h := &History{
		Versions:         map[string]*Version{v.ID: v},
		Branches:         map[string]*Branch{},
		CurrentVersionID: v.ID,
		CurrentBranch:    DefaultBranch,
	}
	h.Branches[DefaultBranch] = &Branch{Name: DefaultBranch, Head: v.ID, CreatedAt: v.CreatedAt, UpdatedAt: v.CreatedAt}
	return h, nil
}

func newVersion(parentID, label string, g *graph.State) (*Version, error) {
	if g == nil {
		return nil, fmt.Errorf("creating version: nil graph")
	}
	digest, _, err := cas.Digest(g)
	if err != nil {
		return nil, fmt.Errorf("digesting snapshot: %w", err)
	}
	return &Version{
		ID:        cas.NewVersionID(),
		ParentID:  parentID,
		Label:     label,
		CreatedAt: cas.NowMs(),
		Digest:    digest,
		Graph:     g,
	}, nil
}

// Commit records g as a child of parentID, makes it current, and advances the
// attached branch. No check is made that parentID is still current; use
// CommitIfHead for that.
func (h *History) Commit(parentID, label string, g *graph.State) (string, error) {
	if _, ok := h.Versions[parentID]; !ok {
		return "", &NotFoundError{Input: parentID}
	}
	v, err := newVersion(parentID, label, g)
	if err != nil {
		return "", err
	}
	h.Versions[v.ID] = v
	h.CurrentVersionID = v.ID
	if b, ok := h.Branches[h.CurrentBranch]; ok {
		b.Head = v.ID
		b.UpdatedAt = v.CreatedAt
	}
	return v.ID, nil
}

// CommitIfHead commits only if expectedParentID is still the current version.
func (h *History) CommitIfHead(expectedParentID, label string, g *graph.State) (string, error) {
	if h.CurrentVersionID != expectedParentID {
		return "", &StaleParentError{Expected: expectedParentID, Actual: h.CurrentVersionID}
	}
	return h.Commit(expectedParentID, label, g)
}

// CreateBranch points a new branch at atVersionID, or at the current version
// when atVersionID is empty. It does not switch to the branch.
func (h *History) CreateBranch(name, atVersionID string) (*Branch, error) {
	if !branchNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	if _, exists := h.Branches[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	at := h.CurrentVersionID
	if atVersionID != "" {
		id, err := h.Resolve(atVersionID)
		if err != nil {
			return nil, err
		}
		at = id
	}
	now := cas.NowMs()
	b := &Branch{Name: name, Head: at, CreatedAt: now, UpdatedAt: now}
	h.Branches[name] = b
	return b, nil
}

// DeleteBranch removes a branch. The checked-out branch cannot be deleted.
// Versions are never removed.
func (h *History) DeleteBranch(name string) error {
	if _, ok := h.Branches[name]; !ok {
		return &NotFoundError{Input: name}
	}
	if h.CurrentBranch == name {
		return fmt.Errorf("%w: %s", ErrBranchCheckedOut, name)
	}
	delete(h.Branches, name)
	return nil
}

// Checkout moves the current position. A branch name attaches to that branch
// at its head; anything else resolves to a version and detaches.
func (h *History) Checkout(ref string) (string, error) {
	if b, ok := h.Branches[ref]; ok {
		h.CurrentBranch = b.Name
		h.CurrentVersionID = b.Head
		return b.Head, nil
	}
	id, err := h.resolveVersion(ref)
	if err != nil {
		return "", err
	}
	h.CurrentBranch = ""
	h.CurrentVersionID = id
	return id, nil
}

// Resolve turns a branch name, version ID, or unique version ID prefix into a
// version ID.
func (h *History) Resolve(ref string) (string, error) {
	if b, ok := h.Branches[ref]; ok {
		return b.Head, nil
	}
	return h.resolveVersion(ref)
}

func (h *History) resolveVersion(ref string) (string, error) {
	if _, ok := h.Versions[ref]; ok {
		return ref, nil
	}
	prefix := strings.ToLower(ref)
	if len(prefix) < minPrefix {
		return "", &NotFoundError{Input: ref}
	}
	var candidates []string
	for id := range h.Versions {
		if strings.HasPrefix(id, prefix) {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 0:
		return "", &NotFoundError{Input: ref}
	case 1:
		return candidates[0], nil
	}
	sort.Strings(candidates)
	return "", &AmbiguityError{Prefix: ref, Candidates: candidates}
}

// Current returns the current version.
func (h *History) Current() *Version {
	return h.Versions[h.CurrentVersionID]
}

// Detached reports whether no branch is checked out.
func (h *History) Detached() bool {
	return h.CurrentBranch == ""
}

// Version looks up a version by exact ID.
func (h *History) Version(id string) (*Version, error) {
	v, ok := h.Versions[id]
	if !ok {
		return nil, &NotFoundError{Input: id}
	}
	return v, nil
}

// BranchList returns the branches sorted by name.
func (h *History) BranchList() []*Branch {
	out := make([]*Branch, 0, len(h.Branches))
	for _, b := range h.Branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks the structural invariants of a history loaded from storage.
func (h *History) Validate() error {
	if _, ok := h.Versions[h.CurrentVersionID]; !ok {
		return fmt.Errorf("current version %s does not exist", h.CurrentVersionID)
	}
	roots := 0
	for id, v := range h.Versions {
		if v.ID != id {
			return fmt.Errorf("version stored under %s has id %s", id, v.ID)
		}
		if v.Graph == nil {
			return fmt.Errorf("version %s has no graph", id)
		}
		if v.ParentID == "" {
			roots++
			continue
		}
		if _, ok := h.Versions[v.ParentID]; !ok {
			return fmt.Errorf("version %s has missing parent %s", id, v.ParentID)
		}
	}
	if roots != 1 {
		return fmt.Errorf("history has %d root versions, want 1", roots)
	}
	for id := range h.Versions {
		if err := h.checkAncestry(id); err != nil {
			return err
		}
	}
	for name, b := range h.Branches {
		if b.Name != name {
			return fmt.Errorf("branch stored under %s is named %s", name, b.Name)
		}
		if _, ok := h.Versions[b.Head]; !ok {
			return fmt.Errorf("branch %s points at missing version %s", name, b.Head)
		}
	}
	if h.CurrentBranch != "" {
		b, ok := h.Branches[h.CurrentBranch]
		if !ok {
			return fmt.Errorf("current branch %s does not exist", h.CurrentBranch)
		}
		if b.Head != h.CurrentVersionID {
			return fmt.Errorf("branch %s head %s differs from current version %s", b.Name, b.Head, h.CurrentVersionID)
		}
	}
	return nil
}

func (h *History) checkAncestry(id string) error {
	steps := 0
	for cur := id; cur != ""; cur = h.Versions[cur].ParentID {
		steps++
		if steps > len(h.Versions) {
			return fmt.Errorf("version %s has a parent cycle", id)
		}
	}
	return nil
}
