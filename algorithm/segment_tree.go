package algorithm

import (
	"sync"

	"github.com/wyfcoding/pstree/xerrors"
)

// SegmentTree (线段树) 只保留最新状态，与 PersistentSegmentTree 共用 Monoid 与 1 起始的坐标约定。
// 每个节点代表一个区间，根节点代表 [1, n]，叶子节点代表单个位置。
// 更新和查询的时间复杂度均为 O(log N)。
// 不需要历史版本时它更省内存，同时作为可持久化实现在最新版本上的对照。
type SegmentTree[T any] struct {
	monoid Monoid[T]
	tree   []T          // 堆式存储节点聚合值，节点 i 的子节点为 2i 与 2i+1，需要 4N 空间。
	n      int          // 值域大小。
	mu     sync.RWMutex // 读写锁，保护并发访问。
}

// NewSegmentTree 创建长度为 n、所有位置均为单位元的线段树。
// n 必须为正数，否则返回 ErrInvalidDomain。
func NewSegmentTree[T any](n int, m Monoid[T]) (*SegmentTree[T], error) {
	if n <= 0 {
		return nil, xerrors.ErrInvalidDomain.Withf("length %d", n)
	}
	st := &SegmentTree[T]{monoid: m, tree: make([]T, 4*n), n: n}
	// 单位元不一定是零值 (例如 decimal)，逐个填充。
	for i := range st.tree {
		st.tree[i] = m.Identity()
	}
	return st, nil
}

// Set 将位置 pos 的值设为 val。
func (st *SegmentTree[T]) Set(pos int, val T) error {
	return st.apply(pos, func(T) T { return val })
}

// Add 将位置 pos 的值与 delta 合并。
func (st *SegmentTree[T]) Add(pos int, delta T) error {
	return st.apply(pos, func(old T) T { return st.monoid.Combine(old, delta) })
}

// apply 校验位置后加写锁，从根节点 (索引 1) 开始递归更新。
func (st *SegmentTree[T]) apply(pos int, leaf func(T) T) error {
	if pos < 1 || pos > st.n {
		return xerrors.ErrOutOfRange.Withf("position %d not in [1, %d]", pos, st.n)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.update(1, 1, st.n, pos, leaf)
	return nil
}

// update 是 apply 的递归辅助函数。
// node: 当前节点索引；start, end: 当前节点代表的区间；pos: 待更新位置。
func (st *SegmentTree[T]) update(node, start, end, pos int, leaf func(T) T) {
	// 到达叶子，直接改写。
	if start == end {
		st.tree[node] = leaf(st.tree[node])
		return
	}

	mid := start + (end-start)/2
	// 根据 pos 决定进入左子树还是右子树。
	if pos <= mid {
		st.update(2*node, start, mid, pos, leaf)
	} else {
		st.update(2*node+1, mid+1, end, pos, leaf)
	}

	// 回溯时由左右子节点重新聚合。
	st.tree[node] = st.monoid.Combine(st.tree[2*node], st.tree[2*node+1])
}

// Query 返回 [lo, hi] 的聚合值。
// lo/hi 先裁剪到 [1, n]，裁剪后为空区间时返回单位元，与可持久化版本的语义一致。
func (st *SegmentTree[T]) Query(lo, hi int) T {
	lo, hi = max(lo, 1), min(hi, st.n)
	if lo > hi {
		return st.monoid.Identity()
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.query(1, 1, st.n, lo, hi)
}

// query 是 Query 的递归辅助函数。
// node: 当前节点索引；start, end: 当前节点代表的区间；lo, hi: 目标区间。
func (st *SegmentTree[T]) query(node, start, end, lo, hi int) T {
	// 情况1: 与目标区间完全不重叠，贡献单位元。
	if hi < start || end < lo {
		return st.monoid.Identity()
	}

	// 情况2: 完全包含在目标区间内，直接返回节点聚合值。
	if lo <= start && end <= hi {
		return st.tree[node]
	}

	// 情况3: 部分重叠，分别查询左右子树后按顺序合并 (Combine 不要求交换律)。
	mid := start + (end-start)/2
	return st.monoid.Combine(
		st.query(2*node, start, mid, lo, hi),
		st.query(2*node+1, mid+1, end, lo, hi),
	)
}

// Len 返回值域大小 n。
func (st *SegmentTree[T]) Len() int { return st.n }
