package algorithm

import (
	"cmp"
	"slices"

	"github.com/wyfcoding/pstree/xerrors"
)

// Discretizer 坐标压缩：将任意可比较的值映射为稠密排名 [1, n]。
type Discretizer[T cmp.Ordered] struct {
	sorted []T // 去重后的升序值，排名 r 对应 sorted[r-1]
}

// NewDiscretizer 对 values 排序去重。values 不会被修改。
func NewDiscretizer[T cmp.Ordered](values []T) *Discretizer[T] {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return &Discretizer[T]{sorted: slices.Compact(sorted)}
}

// Len 返回不同值的个数，即排名值域大小。
func (d *Discretizer[T]) Len() int {
	return len(d.sorted)
}

// Rank 返回 v 的排名 (从 1 开始)。v 不在原始值集合中时返回 ErrOutOfRange。
func (d *Discretizer[T]) Rank(v T) (int, error) {
	i, found := slices.BinarySearch(d.sorted, v)
	if !found {
		return 0, xerrors.ErrOutOfRange.Withf("value %v was not discretized", v)
	}
	return i + 1, nil
}

// Value 将排名还原为原始值。
func (d *Discretizer[T]) Value(rank int) (T, error) {
	if rank < 1 || rank > len(d.sorted) {
		var zero T
		return zero, xerrors.ErrOutOfRange.Withf("rank %d not in [1, %d]", rank, len(d.sorted))
	}
	return d.sorted[rank-1], nil
}

// RangeKth 静态数组的区间第 K 小：离散化 + 按下标逐个插入的主席树。
type RangeKth[T cmp.Ordered] struct {
	disc *Discretizer[T]
	tree *OrderStatTree
}

// NewRangeKth 为 values 建立索引，values[i] 对应下标 i+1。空数组返回 ErrInvalidDomain。
func NewRangeKth[T cmp.Ordered](values []T, opts ...Option) (*RangeKth[T], error) {
	if len(values) == 0 {
		return nil, xerrors.ErrInvalidDomain.Withf("range kth over an empty array")
	}
	disc := NewDiscretizer(values)
	opts = append([]Option{WithExpectedOps(len(values))}, opts...)
	tree, err := NewOrderStatTree(disc.Len(), opts...)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		rank, _ := disc.Rank(v)
		if _, err := tree.Insert(rank); err != nil {
			return nil, err
		}
	}
	return &RangeKth[T]{disc: disc, tree: tree}, nil
}

// Kth 返回下标 [l, r] (从 1 开始，闭区间) 中第 k 小的原始值。
func (q *RangeKth[T]) Kth(l, r int, k int64) (T, error) {
	rank, err := q.tree.KthSmallest(l, r, k)
	if err != nil {
		var zero T
		return zero, err
	}
	return q.disc.Value(rank)
}

// CountLess 返回下标 [l, r] 中严格小于 v 的元素个数，v 可以不在原数组中。
func (q *RangeKth[T]) CountLess(l, r int, v T) (int64, error) {
	// 小于 v 的值恰好占据排名 [1, i]
	i, _ := slices.BinarySearch(q.disc.sorted, v)
	if i == 0 {
		if _, _, err := q.tree.indexVersions(l, r); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return q.tree.CountLessEqual(l, r, i)
}

// Len 返回数组长度。
func (q *RangeKth[T]) Len() int {
	return q.tree.Len()
}

// OrderStat 返回底层的主席树。
func (q *RangeKth[T]) OrderStat() *OrderStatTree {
	return q.tree
}
