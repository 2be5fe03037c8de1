// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"container/heap"
	"sort"
	"time"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

const traceRootName = "ROOT"

type traceNode struct {
	parent   *traceNode
	children []*traceNode
	name     string
	start    time.Time
	stop     time.Time
	closed   bool
	explicit bool
	depth    int
	// closeSeq orders nodes by the time they were closed.
	closeSeq uint64
	params   *orderedAttributes
}

func (n *traceNode) duration() time.Duration {
	if n.stop.After(n.start) {
		return n.stop.Sub(n.start)
	}
	return 0
}

// evictionHeap holds closed leaf nodes, best eviction candidate first.  A
// closed node never gains children, so entries never become stale.
type evictionHeap []*traceNode

func (h evictionHeap) Len() int      { return len(h) }
func (h evictionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Less orders nodes created by the custom tracer API after all others, then
// deepest first, then shortest first, then most recently closed first.
func (h evictionHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.explicit != b.explicit {
		return !a.explicit
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	if da, db := a.duration(), b.duration(); da != db {
		return da < db
	}
	return a.closeSeq > b.closeSeq
}

func (h *evictionHeap) Push(x interface{}) { *h = append(*h, x.(*traceNode)) }

func (h *evictionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// TxnTrace is the segment tree of a single transaction.  Its root is the
// transaction node; segment nodes are counted against maxNodes.
type TxnTrace struct {
	root      *traceNode
	nodeCount int
	maxNodes  int
	closeSeq  uint64
	leaves    evictionHeap
	evicted   int
}

func (tt *TxnTrace) init(start time.Time, maxNodes int) {
	tt.root = &traceNode{start: start}
	tt.maxNodes = maxNodes
}

func (tt *TxnTrace) txnNode() *traceNode {
	if nil == tt.root {
		tt.root = &traceNode{}
	}
	return tt.root
}

// NodeCount returns the number of segment nodes in the tree.
func (tt *TxnTrace) NodeCount() int { return tt.nodeCount }

// admit adds an open node under parent.  It returns nil when the tree is full
// and no node can be evicted.
func (tt *TxnTrace) admit(parent *traceNode, now time.Time, explicit bool) *traceNode {
	if tt.maxNodes > 0 && tt.nodeCount >= tt.maxNodes {
		if !tt.evict() {
			return nil
		}
	}
	n := &traceNode{
		parent:   parent,
		start:    now,
		explicit: explicit,
		depth:    parent.depth + 1,
	}
	parent.children = append(parent.children, n)
	tt.nodeCount++
	return n
}

// close finalizes a node.  Short nodes without children are removed from the
// tree instead of becoming eviction candidates.
func (tt *TxnTrace) close(n *traceNode, stop time.Time, name string, params *orderedAttributes, short bool) {
	if nil == n {
		return
	}
	n.stop = stop
	n.closed = true
	n.name = name
	n.params = params
	tt.closeSeq++
	n.closeSeq = tt.closeSeq

	if 0 != len(n.children) {
		return
	}
	if short {
		tt.remove(n)
		return
	}
	heap.Push(&tt.leaves, n)
}

// remove takes a leaf out of its parent's children by swap-and-pop.
func (tt *TxnTrace) remove(n *traceNode) {
	p := n.parent
	for i, c := range p.children {
		if c == n {
			last := len(p.children) - 1
			p.children[i] = p.children[last]
			p.children[last] = nil
			p.children = p.children[:last]
			break
		}
	}
	n.parent = nil
	tt.nodeCount--

	if p != tt.root && p.closed && 0 == len(p.children) {
		heap.Push(&tt.leaves, p)
	}
}

// evict removes the best eviction candidate.  It returns false when there is
// no closed leaf to remove.
func (tt *TxnTrace) evict() bool {
	if 0 == tt.leaves.Len() {
		return false
	}
	victim := heap.Pop(&tt.leaves).(*traceNode)
	tt.remove(victim)
	tt.evicted++
	return true
}

func relativeMillis(start, t time.Time) uint64 {
	if t.Before(start) {
		return 0
	}
	return uint64(t.Sub(start) / time.Millisecond)
}

func writeTraceNode(buf *bytes.Buffer, st *StringTable, txnStart time.Time, n *traceNode) {
	buf.WriteByte('[')
	jsonx.AppendUint(buf, relativeMillis(txnStart, n.start))
	buf.WriteByte(',')
	jsonx.AppendUint(buf, relativeMillis(txnStart, n.stop))
	buf.WriteByte(',')
	jsonx.AppendString(buf, st.Intern(n.name))
	buf.WriteByte(',')
	n.params.writeJSON(buf, destTxnTrace)
	buf.WriteByte(',')
	buf.WriteByte('[')
	children := make([]*traceNode, len(n.children))
	copy(children, n.children)
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].start.Before(children[j].start)
	})
	for i, c := range children {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeTraceNode(buf, st, txnStart, c)
	}
	buf.WriteByte(']')
	buf.WriteByte(']')
}

// HarvestTrace contains a transaction trace ready for harvest.
type HarvestTrace struct {
	Start                time.Time
	Duration             time.Duration
	FinalName            string
	CleanURL             string
	GUID                 string
	ForcePersist         bool
	SyntheticsResourceID string

	trace      *TxnTrace
	intrinsics orderedAttributes
	attrs      *Attributes
}

func (trace *HarvestTrace) writeTraceData(buf *bytes.Buffer) {
	st := NewStringTable()
	tree := trace.trace.txnNode()
	tree.name = trace.FinalName
	tree.start = trace.Start
	tree.stop = trace.Start.Add(trace.Duration)

	buf.WriteByte('[')
	buf.WriteByte('[')
	buf.WriteString(`0,{},{},`)

	// ROOT wraps the transaction node.
	buf.WriteByte('[')
	buf.WriteString(`0,`)
	jsonx.AppendUint(buf, relativeMillis(trace.Start, tree.stop))
	buf.WriteByte(',')
	jsonx.AppendString(buf, st.Intern(traceRootName))
	buf.WriteString(`,{},[`)
	writeTraceNode(buf, st, trace.Start, tree)
	buf.WriteString(`]]`)

	buf.WriteByte(',')
	buf.WriteByte('{')
	w := jsonFieldsWriter{buf: buf}
	buf2 := &bytes.Buffer{}
	trace.intrinsics.writeJSON(buf2, destTxnTrace)
	w.rawField("intrinsics", buf2.Bytes())
	var agent, user *orderedAttributes
	if nil != trace.attrs {
		agent, user = &trace.attrs.Agent, &trace.attrs.User
	}
	buf2 = &bytes.Buffer{}
	agent.writeJSON(buf2, destTxnTrace)
	w.rawField("agentAttributes", buf2.Bytes())
	buf2 = &bytes.Buffer{}
	user.writeJSON(buf2, destTxnTrace)
	w.rawField("userAttributes", buf2.Bytes())
	buf.WriteByte('}')
	buf.WriteByte(']')

	buf.WriteByte(',')
	st.WriteJSON(buf)
	buf.WriteByte(']')
}

// WriteJSON writes the trace in the format expected by the collector.
func (trace *HarvestTrace) WriteJSON(buf *bytes.Buffer) {
	buf.WriteByte('[')
	jsonx.AppendFloat(buf, timeToFloatMilliseconds(trace.Start))
	buf.WriteByte(',')
	jsonx.AppendFloat(buf, durationToMilliseconds(trace.Duration))
	buf.WriteByte(',')
	jsonx.AppendString(buf, trace.FinalName)
	buf.WriteByte(',')
	jsonx.AppendString(buf, trace.CleanURL)
	buf.WriteByte(',')
	trace.writeTraceData(buf)
	buf.WriteByte(',')
	jsonx.AppendString(buf, trace.GUID)
	buf.WriteByte(',')
	buf.WriteString(`null`)
	buf.WriteByte(',')
	jsonx.AppendBool(buf, trace.ForcePersist)
	buf.WriteByte(',')
	buf.WriteString(`null`)
	buf.WriteByte(',')
	jsonx.AppendString(buf, trace.SyntheticsResourceID)
	buf.WriteByte(']')
}

// MarshalJSON is used for testing.
func (trace *HarvestTrace) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	trace.WriteJSON(buf)
	return buf.Bytes(), nil
}

// harvestTraces keeps the slowest regular trace plus a bounded number of
// synthetics traces.
type harvestTraces struct {
	regular    *HarvestTrace
	synthetics []*HarvestTrace
}

func newHarvestTraces() *harvestTraces {
	return &harvestTraces{
		synthetics: make([]*HarvestTrace, 0, maxSyntheticsTraces),
	}
}

func (traces *harvestTraces) Len() int {
	count := len(traces.synthetics)
	if nil != traces.regular {
		count++
	}
	return count
}

func (traces *harvestTraces) Witness(trace *HarvestTrace) {
	if "" != trace.SyntheticsResourceID {
		if len(traces.synthetics) < cap(traces.synthetics) {
			traces.synthetics = append(traces.synthetics, trace)
			return
		}
		// Synthetics traces beyond the limit compete with regular traces.
	}
	if nil == traces.regular || trace.Duration > traces.regular.Duration {
		traces.regular = trace
	}
}

func (traces *harvestTraces) slice() []*HarvestTrace {
	out := make([]*HarvestTrace, 0, traces.Len())
	out = append(out, traces.synthetics...)
	if nil != traces.regular {
		out = append(out, traces.regular)
	}
	return out
}

func (traces *harvestTraces) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	if nil == traces || 0 == traces.Len() {
		return nil, nil
	}

	estimate := 512 * traces.Len()
	buf := bytes.NewBuffer(make([]byte, 0, estimate))

	buf.WriteByte('[')
	jsonx.AppendString(buf, agentRunID)
	buf.WriteByte(',')
	buf.WriteByte('[')
	for i, trace := range traces.slice() {
		if i > 0 {
			buf.WriteByte(',')
		}
		trace.WriteJSON(buf)
	}
	buf.WriteByte(']')
	buf.WriteByte(']')

	return buf.Bytes(), nil
}

// MergeIntoHarvest is a no-op: traces are not retried.
func (traces *harvestTraces) MergeIntoHarvest(h *Harvest) {}

func (traces *harvestTraces) EndpointMethod() string {
	return cmdTxnTraces
}
