package filesystem

import (
	"strings"

	"github.com/brettbedarf/webmirror"
)

// NodeContext is a read-locked view of one node and its children.
// Every read made through it observes the same store state.
// Calling NodeContext.Close() unwinds all unlocking/cleanup callbacks in reverse order.
// Do NOT call mutating [FileSystem] methods while this context is active.
//
// NOTE: NodeContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type NodeContext struct {
	fs       *FileSystem
	node     *webmirror.Node
	closeFns []func()
}

// Node returns a snapshot of the context's node
func (ctx *NodeContext) Node() webmirror.Node {
	return *ctx.node
}

// ID returns the node's id
func (ctx *NodeContext) ID() string {
	return ctx.node.ID
}

// Child returns the child called name
func (ctx *NodeContext) Child(name string) (webmirror.Node, bool) {
	id, ok := ctx.fs.children[ctx.node.ID][name]
	if !ok {
		return webmirror.Node{}, false
	}
	n, ok := ctx.fs.nodes.Load(id)
	if !ok {
		return webmirror.Node{}, false
	}
	return *n, true
}

// Children returns snapshots of every child in no particular order
func (ctx *NodeContext) Children() []webmirror.Node {
	return ctx.Search("")
}

// Search returns the children whose name contains term, ignoring case.
// An empty term matches everything.
func (ctx *NodeContext) Search(term string) []webmirror.Node {
	idx := ctx.fs.children[ctx.node.ID]
	out := make([]webmirror.Node, 0, len(idx))
	term = strings.ToLower(term)
	for name, id := range idx {
		if term != "" && !strings.Contains(strings.ToLower(name), term) {
			continue
		}
		if n, ok := ctx.fs.nodes.Load(id); ok {
			out = append(out, *n)
		}
	}
	return out
}

// Subtree returns the node and all of its descendants, parents first
func (ctx *NodeContext) Subtree() []webmirror.Node {
	return ctx.fs.subtreeLocked(ctx.node.ID)
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *NodeContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil; it is a no-op in that case, so you can
// `defer ctx.Close()` unconditionally.
//
// Example:
//
//	ctx := fs.NodeCtx(id)
//	defer ctx.Close()
func (ctx *NodeContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
