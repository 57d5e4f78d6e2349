package algorithm

import (
	"sync/atomic"
	"time"

	"github.com/wyfcoding/pstree/xerrors"
)

// OrderStatTree 基于主席树的区间第 K 小。
// 值域为离散化后的排名 [1, n]；版本 i 在版本 i-1 上插入第 i 个元素的排名，
// 因此版本 R 减去版本 L-1 恰好是原数组下标 [L, R] 内元素的多重集。
// 同一排名重复插入时合并为叶子上的计数。
//
// 按下标查询 (KthSmallest/CountLessEqual) 要求版本历史是一条链。
// 一旦出现分叉 (InsertAt 不在最新版本上插入)，版本号不再等于前缀长度，这类查询返回
// ErrInvalidVersionPair；按版本对查询 (KthInRange/CountInRange) 不受影响。
type OrderStatTree struct {
	tree     *PersistentSegmentTree[int64]
	branched atomic.Bool
}

// NewOrderStatTree 创建排名值域为 [1, n] 的空树 (版本 0)。
func NewOrderStatTree(n int, opts ...Option) (*OrderStatTree, error) {
	tree, err := NewPersistentSegmentTree[int64](n, Int64Sum{}, opts...)
	if err != nil {
		return nil, err
	}
	return &OrderStatTree{tree: tree}, nil
}

// Insert 在最新版本上插入一个排名，返回新版本号。第 i 次插入产生版本 i。
func (t *OrderStatTree) Insert(rank int) (Version, error) {
	return t.InsertAt(t.tree.Latest(), rank)
}

// InsertAt 在指定版本上插入一个排名。base 不是最新版本时历史产生分叉。
func (t *OrderStatTree) InsertAt(base Version, rank int) (Version, error) {
	v, err := t.tree.Add(base, rank, 1)
	if err != nil {
		return v, err
	}
	// 版本按发布顺序编号，新版本紧跟 base 当且仅当 base 是发布时的最新版本
	if v != base+1 {
		t.branched.Store(true)
	}
	return v, nil
}

// Linear 报告版本历史是否仍是一条链，即版本 i 恰好是前 i 次插入。
func (t *OrderStatTree) Linear() bool {
	return !t.branched.Load()
}

// Tree 返回底层的计数树，可用于 Query/Verify 等通用操作。
func (t *OrderStatTree) Tree() *PersistentSegmentTree[int64] {
	return t.tree
}

// Len 返回已插入的元素个数。
func (t *OrderStatTree) Len() int {
	return t.tree.Len() - 1
}

func (t *OrderStatTree) roots(hi, lo Version) (Handle, Handle, error) {
	if lo > hi {
		return nilHandle, nilHandle, xerrors.ErrInvalidVersionPair.Withf("low version %d newer than high version %d", lo, hi)
	}
	rootHi, err := t.tree.versions.root(hi)
	if err != nil {
		return nilHandle, nilHandle, err
	}
	rootLo, err := t.tree.versions.root(lo)
	if err != nil {
		return nilHandle, nilHandle, err
	}
	return rootHi, rootLo, nil
}

// KthInRange 在 (hi 减 lo) 表示的多重集中查找第 k 小的排名。
// 两棵树同步下降：左子树计数之差不小于 k 则向左，否则 k 减去该差值后向右。
func (t *OrderStatTree) KthInRange(hi, lo Version, k int64) (rank int, err error) {
	start := time.Now()
	defer func() { t.tree.inst.observe("kth", start, err) }()

	rootHi, rootLo, err := t.roots(hi, lo)
	if err != nil {
		return 0, err
	}
	total := t.tree.agg(rootHi) - t.tree.agg(rootLo)
	if k <= 0 || k > total {
		return 0, xerrors.ErrRankOutOfRange.Withf("k=%d, count=%d", k, total)
	}

	l, r := 1, t.tree.n
	for l < r {
		hiL, hiR := t.tree.children(rootHi)
		loL, loR := t.tree.children(rootLo)
		mid := l + (r-l)>>1
		leftCount := t.tree.agg(hiL) - t.tree.agg(loL)
		if leftCount >= k {
			rootHi, rootLo, r = hiL, loL, mid
		} else {
			k -= leftCount
			rootHi, rootLo, l = hiR, loR, mid+1
		}
	}
	return l, nil
}

// CountInRange 返回 (hi 减 lo) 中排名落在 [from, to] 的元素个数。
func (t *OrderStatTree) CountInRange(hi, lo Version, from, to int) (int64, error) {
	if _, _, err := t.roots(hi, lo); err != nil {
		return 0, err
	}
	a, err := t.tree.Query(hi, from, to)
	if err != nil {
		return 0, err
	}
	b, err := t.tree.Query(lo, from, to)
	if err != nil {
		return 0, err
	}
	return a - b, nil
}

// indexVersions 将原数组下标区间 [l, r] (从 1 开始) 转换为版本对 (r, l-1)。
func (t *OrderStatTree) indexVersions(l, r int) (Version, Version, error) {
	if t.branched.Load() {
		return 0, 0, xerrors.ErrInvalidVersionPair.Withf("history is branched, index range [%d, %d] has no prefix versions", l, r)
	}
	if l < 1 || r > t.Len() || l > r {
		return 0, 0, xerrors.ErrOutOfRange.Withf("index range [%d, %d] not within [1, %d]", l, r, t.Len())
	}
	return Version(r), Version(l - 1), nil
}

// KthSmallest 返回原数组下标 [l, r] 中第 k 小元素的排名。要求元素按下标顺序经 Insert 插入。
func (t *OrderStatTree) KthSmallest(l, r int, k int64) (int, error) {
	hi, lo, err := t.indexVersions(l, r)
	if err != nil {
		return 0, err
	}
	return t.KthInRange(hi, lo, k)
}

// CountLessEqual 返回原数组下标 [l, r] 中排名不超过 rank 的元素个数。
func (t *OrderStatTree) CountLessEqual(l, r, rank int) (int64, error) {
	hi, lo, err := t.indexVersions(l, r)
	if err != nil {
		return 0, err
	}
	return t.CountInRange(hi, lo, 1, rank)
}
