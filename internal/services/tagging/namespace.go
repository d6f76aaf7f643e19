// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
)

// Unlimited disables the depth bound of Descendants.
const Unlimited = -1

// AddTag creates a label named name under parentID and returns its id.
func (e *Engine) AddTag(ctx context.Context, parentID, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}

	if parentID == IDAll || parentID == IDNone {
		return "", errors.Wrapf(ErrInvalidParent, "parent %q", parentID)
	}
	if parentID != IDNull {
		if _, ok := e.tags[parentID]; !ok {
			return "", errors.Wrapf(ErrInvalidParent, "parent %q", parentID)
		}
	}

	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	if e.siblingNamed(parentID, name, "") {
		return "", errors.Wrapf(ErrNameConflict, "%q under %q", name, parentID)
	}

	id := e.nextID(parentID)
	opts := e.sanitizeOptions(id, e.prefs.Tag)

	e.tags[id] = &tagNode{name: name, options: opts, items: make(map[string]struct{})}
	e.appendChild(parentID, id)
	e.tags[id].fullName = e.resolveFullName(id)
	e.refreshMovePaths(ctx, id, true, false)
	if opts.SharedLimitActive() {
		e.sharedLimits[id] = struct{}{}
	}
	e.markTagsChanged()

	log.Debug().Str("tagID", id).Str("name", e.tags[id].fullName).Msg("tagging: label added")
	return id, nil
}

// RenameTag renames a label in place. Descendant full names and derived
// move paths follow.
func (e *Engine) RenameTag(ctx context.Context, id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}
	return e.renameLocked(ctx, id, name)
}

func (e *Engine) renameLocked(ctx context.Context, id, name string) error {
	if IsReserved(id) {
		return errors.Wrapf(ErrInvalidOperation, "cannot rename %q", id)
	}
	node, ok := e.tags[id]
	if !ok {
		return errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}

	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	if e.siblingNamed(ParentID(id), name, id) {
		return errors.Wrapf(ErrNameConflict, "%q under %q", name, ParentID(id))
	}

	node.name = name
	e.refreshFullNames(id)
	e.refreshMovePaths(ctx, id, true, true)
	if e.prefs.Options.MoveOnChanges {
		e.moveCompleted(ctx, e.itemsUnder(id, true))
	}
	e.markTagsChanged()
	return nil
}

// MoveTag relocates a label under destID with a new name and returns the
// label's new id. Ids are structural, so the label and every descendant are
// re-minted; options, items and shared-limit membership carry over. Moving
// within the current parent is a rename and keeps the id.
func (e *Engine) MoveTag(ctx context.Context, id, destID, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}

	if IsReserved(id) {
		return "", errors.Wrapf(ErrInvalidOperation, "cannot move %q", id)
	}
	if destID == IDAll || destID == IDNone {
		return "", errors.Wrapf(ErrInvalidOperation, "cannot move into %q", destID)
	}
	if _, ok := e.tags[id]; !ok {
		return "", errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}
	if destID != IDNull {
		if _, ok := e.tags[destID]; !ok {
			return "", errors.Wrapf(ErrInvalidParent, "destination %q", destID)
		}
	}
	if destID == id || isAncestor(id, destID) {
		return "", errors.Wrapf(ErrInvalidParent, "%q is %q or one of its descendants", destID, id)
	}

	if destID == ParentID(id) {
		if err := e.renameLocked(ctx, id, name); err != nil {
			return "", err
		}
		return id, nil
	}

	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	if e.siblingNamed(destID, name, "") {
		return "", errors.Wrapf(ErrNameConflict, "%q under %q", name, destID)
	}

	newID := e.nextID(destID)
	type pair struct{ from, to string }
	work := []pair{{from: id, to: newID}}
	var (
		moved      []string
		movedItems bool
	)

	for len(work) > 0 {
		p := work[0]
		work = work[1:]

		old := e.tags[p.from]
		node := &tagNode{name: old.name, options: old.options, items: old.items}
		e.tags[p.to] = node
		moved = append(moved, p.from)

		for itemID := range node.items {
			e.mappings[itemID] = p.to
			movedItems = true
		}
		if _, ok := e.sharedLimits[p.from]; ok {
			delete(e.sharedLimits, p.from)
			e.sharedLimits[p.to] = struct{}{}
		}

		for _, child := range old.children {
			next := e.nextID(p.to)
			node.children = append(node.children, next)
			// Reserve the id before allocating the next sibling.
			e.tags[next] = &tagNode{}
			work = append(work, pair{from: child, to: next})
		}
	}

	e.removeChild(ParentID(id), id)
	for _, oldID := range moved {
		delete(e.tags, oldID)
	}

	e.tags[newID].name = name
	e.appendChild(destID, newID)
	e.refreshFullNames(newID)
	if destID == IDNull {
		e.tags[newID].options.MoveCompletedMode = models.MoveCompletedModeFolder
	}
	e.refreshMovePaths(ctx, newID, true, true)
	if e.prefs.Options.MoveOnChanges {
		e.moveCompleted(ctx, e.itemsUnder(newID, true))
	}

	e.markTagsChanged()
	if movedItems {
		e.markMappingsChanged()
	}

	log.Debug().Str("from", id).Str("to", newID).Msg("tagging: label moved")
	return newID, nil
}

// RemoveTag removes a label and its whole subtree. Items under any removed
// label become unlabelled and get the baseline policy.
func (e *Engine) RemoveTag(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}

	if IsReserved(id) {
		return errors.Wrapf(ErrInvalidOperation, "cannot remove %q", id)
	}
	if _, ok := e.tags[id]; !ok {
		return errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}

	// Deepest labels first, the target last.
	removed := e.descendants(id, Unlimited)
	slices.Reverse(removed)
	removed = append(removed, id)

	var unlabelled []string
	for _, tagID := range removed {
		node := e.tags[tagID]
		for itemID := range node.items {
			delete(e.mappings, itemID)
			e.resetPolicy(ctx, itemID)
			unlabelled = append(unlabelled, itemID)
		}
		delete(e.sharedLimits, tagID)
	}

	e.removeChild(ParentID(id), id)
	for _, tagID := range removed {
		delete(e.tags, tagID)
	}

	if len(unlabelled) > 0 {
		if e.prefs.Options.MoveOnChanges {
			e.moveCompleted(ctx, unlabelled)
		}
		e.markMappingsChanged()
	}
	e.markTagsChanged()

	log.Debug().Str("tagID", id).Int("labels", len(removed)).Int("items", len(unlabelled)).Msg("tagging: label removed")
	return nil
}

// Descendants lists the labels below id, depth-first in child order.
// maxDepth bounds the walk: 0 yields nothing, Unlimited walks the whole subtree.
// IDNull enumerates every label.
func (e *Engine) Descendants(id string, maxDepth int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}
	if id != IDNull {
		if _, ok := e.tags[id]; !ok {
			return nil, errors.Wrapf(ErrInvalidTag, "tag %q", id)
		}
	}
	return e.descendants(id, maxDepth), nil
}

func (e *Engine) descendants(id string, maxDepth int) []string {
	type frame struct {
		id    string
		depth int
	}

	var out []string
	stack := []frame{}
	pushChildren := func(parent string, depth int) {
		children := e.childrenOf(parent)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: children[i], depth: depth})
		}
	}

	if maxDepth == 0 {
		return out
	}
	pushChildren(id, 1)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, f.id)
		if maxDepth == Unlimited || f.depth < maxDepth {
			pushChildren(f.id, f.depth+1)
		}
	}
	return out
}

// FullName returns the "/"-joined path of names from the root to id.
func (e *Engine) FullName(id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}
	if id == IDNull {
		return "", nil
	}
	node, ok := e.tags[id]
	if !ok {
		return "", errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}
	return node.fullName, nil
}

func (e *Engine) resolveFullName(id string) string {
	var names []string
	for cur := id; cur != IDNull; cur = ParentID(cur) {
		node, ok := e.tags[cur]
		if !ok {
			break
		}
		names = append(names, node.name)
	}
	slices.Reverse(names)
	return strings.Join(names, FullNameSeparator)
}

func (e *Engine) refreshFullNames(id string) {
	e.tags[id].fullName = e.resolveFullName(id)
	for _, child := range e.descendants(id, Unlimited) {
		e.tags[child].fullName = e.resolveFullName(child)
	}
}

// nextID returns the lowest free child id under parent.
func (e *Engine) nextID(parent string) string {
	for i := 0; ; i++ {
		id := childID(parent, i)
		if _, ok := e.tags[id]; !ok {
			return id
		}
	}
}

func (e *Engine) siblingNamed(parent, name, exclude string) bool {
	for _, child := range e.childrenOf(parent) {
		if child != exclude && e.tags[child].name == name {
			return true
		}
	}
	return false
}

func (e *Engine) childrenOf(id string) []string {
	if id == IDNull {
		return e.roots
	}
	if node, ok := e.tags[id]; ok {
		return node.children
	}
	return nil
}

func (e *Engine) appendChild(parent, id string) {
	if parent == IDNull {
		e.roots = append(e.roots, id)
		return
	}
	node := e.tags[parent]
	node.children = append(node.children, id)
}

func (e *Engine) removeChild(parent, id string) {
	remove := func(list []string) []string {
		return slices.DeleteFunc(list, func(c string) bool { return c == id })
	}
	if parent == IDNull {
		e.roots = remove(e.roots)
		return
	}
	if node, ok := e.tags[parent]; ok {
		node.children = remove(node.children)
	}
}

// itemsUnder collects items mapped to id and, with subtree, to its descendants.
func (e *Engine) itemsUnder(id string, subtree bool) []string {
	ids := []string{id}
	if subtree {
		ids = append(ids, e.descendants(id, Unlimited)...)
	}
	var items []string
	for _, tagID := range ids {
		for itemID := range e.tags[tagID].items {
			items = append(items, itemID)
		}
	}
	slices.Sort(items)
	return items
}
