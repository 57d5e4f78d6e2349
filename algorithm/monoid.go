package algorithm

// Monoid 描述线段树节点上的聚合运算：结合律的二元运算 Combine 与单位元 Identity。
// 缺失的子树 (句柄 0) 一律视为 Identity。
type Monoid[T any] interface {
	Identity() T
	Combine(a, b T) T
	Equal(a, b T) bool
}

// Int64Sum 整数求和幺半群，同时用作计数 (每次插入 +1)。
type Int64Sum struct{}

// Identity 返回 0。
func (Int64Sum) Identity() int64 { return 0 }

// Combine 返回 a + b。
func (Int64Sum) Combine(a, b int64) int64 { return a + b }

// Equal 判断两个聚合值是否相等。
func (Int64Sum) Equal(a, b int64) bool { return a == b }
