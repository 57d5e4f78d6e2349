package algorithm

import (
	"math"
	"sync/atomic"

	"github.com/wyfcoding/pstree/xerrors"
)

// Handle 节点句柄。0 号句柄表示缺失的子树，其聚合值为单位元，永远不会被分配出去。
type Handle uint32

const nilHandle Handle = 0

// 节点按块存放，单块 4096 个节点。块一经分配地址不变，
// 读者持有旧的块目录也能安全访问已发布的节点。
const (
	chunkShift = 12
	chunkSize  = 1 << chunkShift
	chunkMask  = chunkSize - 1
)

// 块目录扩容系数 3/2。
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// pstNode 主席树节点。写入后不再修改。
type pstNode[T any] struct {
	left, right Handle
	agg         T
}

type chunk[T any] [chunkSize]pstNode[T]

// NodePool 只追加的节点池。
// 写入 (Allocate/rollback) 必须由调用方串行化；读取 (Node/Agg) 可与写入并发，
// 前提是读者只访问已经通过版本表发布的句柄。
type NodePool[T any] struct {
	dir   atomic.Pointer[[]*chunk[T]]
	next  Handle // 下一个可分配句柄，仅写者访问
	used  atomic.Int64
	limit int // 节点数上限，0 表示仅受句柄空间限制
}

// NewNodePool 创建节点池。limit 为节点数上限 (0 不限)，reserve 为预估节点数，用于预留块目录容量。
func NewNodePool[T any](limit, reserve int) *NodePool[T] {
	chunks := 1
	if reserve > 0 {
		chunks = (reserve + chunkSize) / chunkSize
	}
	dir := make([]*chunk[T], 1, chunks)
	dir[0] = new(chunk[T]) // 0 号槽位保留
	p := &NodePool[T]{next: 1, limit: limit}
	p.dir.Store(&dir)
	return p
}

// Allocate 分配一个新节点并返回其句柄。节点内容在此一次写定。
func (p *NodePool[T]) Allocate(left, right Handle, agg T) (Handle, error) {
	if p.limit > 0 && int(p.next)-1 >= p.limit {
		return nilHandle, xerrors.ErrOutOfMemory.Withf("node limit %d reached", p.limit)
	}
	if p.next == math.MaxUint32 {
		return nilHandle, xerrors.ErrOutOfMemory.Withf("handle space exhausted")
	}

	h := p.next
	dir := *p.dir.Load()
	c := int(h >> chunkShift)
	if c >= len(dir) {
		dir = p.grow(dir)
	}
	dir[c][h&chunkMask] = pstNode[T]{left: left, right: right, agg: agg}
	p.next++
	p.used.Add(1)
	return h, nil
}

// grow 追加一个新块并发布新的块目录。
func (p *NodePool[T]) grow(dir []*chunk[T]) []*chunk[T] {
	if len(dir) == cap(dir) {
		bigger := make([]*chunk[T], len(dir), (cap(dir)*growCapacityNumerator)/growCapacityDenominator+1)
		copy(bigger, dir)
		dir = bigger
	}
	// 追加位置超出所有旧目录的长度，旧读者不可见
	dir = append(dir, new(chunk[T]))
	p.dir.Store(&dir)
	return dir
}

// Node 返回节点的左右子句柄与聚合值。h 不能为 0。
func (p *NodePool[T]) Node(h Handle) (left, right Handle, agg T) {
	n := &(*p.dir.Load())[h>>chunkShift][h&chunkMask]
	return n.left, n.right, n.agg
}

// mark 返回当前分配位置，配合 rollback 撤销一次失败更新中途分配的节点。
func (p *NodePool[T]) mark() Handle {
	return p.next
}

// rollback 丢弃 mark 之后分配的节点。这些节点尚未被任何已发布版本引用。
func (p *NodePool[T]) rollback(m Handle) {
	if m >= p.next {
		return
	}
	dir := *p.dir.Load()
	var zero pstNode[T]
	for h := m; h < p.next; h++ {
		dir[h>>chunkShift][h&chunkMask] = zero
	}
	p.used.Add(-int64(p.next - m))
	p.next = m
}

// Len 返回已分配节点数 (不含保留的 0 号节点)。可并发调用。
func (p *NodePool[T]) Len() int {
	return int(p.used.Load())
}

// Limit 返回节点数上限，0 表示不限。
func (p *NodePool[T]) Limit() int {
	return p.limit
}
