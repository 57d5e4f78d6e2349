package algorithm

import (
	"github.com/wyfcoding/pstree/xerrors"
)

// DistinctCounter 区间不同元素个数 (在线查询)。
// 值域为数组下标。处理第 i 个元素时在位置 i 上 +1，并在同值元素上一次出现的位置 -1，
// 于是对应版本中每种值只在其最后一次出现的位置计 1，[l, r] 的区间和即为答案。
type DistinctCounter[T comparable] struct {
	tree      *PersistentSegmentTree[int64]
	versionOf []Version // versionOf[i] 为处理完前 i 个元素后的版本
}

// NewDistinctCounter 为 values 建立索引，values[i] 对应下标 i+1。空数组返回 ErrInvalidDomain。
func NewDistinctCounter[T comparable](values []T, opts ...Option) (*DistinctCounter[T], error) {
	if len(values) == 0 {
		return nil, xerrors.ErrInvalidDomain.Withf("distinct counter over an empty array")
	}
	opts = append([]Option{WithExpectedOps(2 * len(values))}, opts...)
	tree, err := NewPersistentSegmentTree[int64](len(values), Int64Sum{}, opts...)
	if err != nil {
		return nil, err
	}

	versionOf := make([]Version, len(values)+1)
	last := make(map[T]int, len(values))
	cur := tree.Latest()
	for i, v := range values {
		pos := i + 1
		if cur, err = tree.Add(cur, pos, 1); err != nil {
			return nil, err
		}
		if prev, ok := last[v]; ok {
			if cur, err = tree.Add(cur, prev, -1); err != nil {
				return nil, err
			}
		}
		last[v] = pos
		versionOf[pos] = cur
	}
	return &DistinctCounter[T]{tree: tree, versionOf: versionOf}, nil
}

// Count 返回下标 [l, r] (从 1 开始，闭区间) 中不同值的个数。
func (d *DistinctCounter[T]) Count(l, r int) (int64, error) {
	n := len(d.versionOf) - 1
	if l < 1 || r > n || l > r {
		return 0, xerrors.ErrOutOfRange.Withf("index range [%d, %d] not within [1, %d]", l, r, n)
	}
	return d.tree.Query(d.versionOf[r], l, r)
}

// Tree 返回底层的计数树。
func (d *DistinctCounter[T]) Tree() *PersistentSegmentTree[int64] {
	return d.tree
}
