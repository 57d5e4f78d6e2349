package algorithm

import "github.com/shopspring/decimal"

// DecimalSum 精确十进制求和，适用于金额等不能有浮点误差的版本化数组。
type DecimalSum struct{}

// Identity 返回 decimal.Zero。
func (DecimalSum) Identity() decimal.Decimal { return decimal.Zero }

// Combine 返回 a + b。
func (DecimalSum) Combine(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }

// Equal 按数值比较，忽略精度表示差异 (1.0 == 1.00)。
func (DecimalSum) Equal(a, b decimal.Decimal) bool { return a.Equal(b) }
