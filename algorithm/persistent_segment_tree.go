package algorithm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wyfcoding/pstree/logging"
	"github.com/wyfcoding/pstree/xerrors"
)

// PersistentSegmentTree 可持久化线段树 (主席树)。
// 值域 [1, n] 在建树时固定；每次单点修改通过路径复制产生一个新版本，
// 只新建根到叶子路径上的 O(log n) 个节点，其余子树与旧版本共享。
// 适用于：历史版本查询、区间第 K 小、区间不同元素个数。
//
// 写操作 (Set/Add) 互斥执行；查询无锁，可与写操作及其他查询并发。
type PersistentSegmentTree[T any] struct {
	id       uint64 // 进程内唯一，区分同名的树
	monoid   Monoid[T]
	pool     *NodePool[T]
	versions *versionTable
	logger   *slog.Logger
	inst     *instrument
	name     string
	n        int
	batch    int        // BatchQuery 默认并发度，0 表示 GOMAXPROCS
	mu       sync.Mutex // 串行化写者
}

var treeSeq atomic.Uint64

func newTree[T any](n int, m Monoid[T], opts []Option) (*PersistentSegmentTree[T], error) {
	if n <= 0 {
		return nil, xerrors.ErrInvalidDomain.Withf("domain size %d", n)
	}
	o := newTreeOptions(opts)
	return &PersistentSegmentTree[T]{
		id:       treeSeq.Add(1),
		monoid:   m,
		pool:     NewNodePool[T](o.maxNodes, expectedNodes(n, o.expectedOps)),
		versions: newVersionTable(o.expectedOps + 1),
		logger:   o.logger.With("tree", o.name),
		inst:     &instrument{m: o.metrics, name: o.name},
		name:     o.name,
		n:        n,
		batch:    o.batchConcurrency,
	}, nil
}

// NewPersistentSegmentTree 在值域 [1, n] 上建立版本 0，所有位置为单位元。
func NewPersistentSegmentTree[T any](n int, m Monoid[T], opts ...Option) (*PersistentSegmentTree[T], error) {
	t, err := newTree(n, m, opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	root, err := t.build(1, n, nil)
	if err != nil {
		t.inst.observe("build", start, err)
		return nil, err
	}
	t.finishBuild(root, start)
	return t, nil
}

// NewPersistentSegmentTreeFromSlice 以 values 为初值建立版本 0，values[i] 位于坐标 i+1。
func NewPersistentSegmentTreeFromSlice[T any](values []T, m Monoid[T], opts ...Option) (*PersistentSegmentTree[T], error) {
	t, err := newTree(len(values), m, opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	root, err := t.build(1, len(values), values)
	if err != nil {
		t.inst.observe("build", start, err)
		return nil, err
	}
	t.finishBuild(root, start)
	return t, nil
}

func (t *PersistentSegmentTree[T]) finishBuild(root Handle, start time.Time) {
	t.versions.publish(root)
	t.inst.observe("build", start, nil)
	t.inst.gauges(t.pool.Len(), 1)
	t.logger.Info("persistent segment tree built",
		"domain", t.n,
		"nodes", t.pool.Len(),
		"memory", humanize.Bytes(uint64(t.pool.Len()*nodeBytes[T]())),
		"duration", time.Since(start))
}

// build 后序构建 [l, r]：先建子树，父节点的聚合值由已定稿的子节点得出。
func (t *PersistentSegmentTree[T]) build(l, r int, values []T) (Handle, error) {
	if l == r {
		agg := t.monoid.Identity()
		if values != nil {
			agg = values[l-1]
		}
		return t.pool.Allocate(nilHandle, nilHandle, agg)
	}
	mid := l + (r-l)>>1
	left, err := t.build(l, mid, values)
	if err != nil {
		return nilHandle, err
	}
	right, err := t.build(mid+1, r, values)
	if err != nil {
		return nilHandle, err
	}
	return t.pool.Allocate(left, right, t.monoid.Combine(t.agg(left), t.agg(right)))
}

// agg 返回节点聚合值，缺失节点为单位元。
func (t *PersistentSegmentTree[T]) agg(h Handle) T {
	if h == nilHandle {
		return t.monoid.Identity()
	}
	_, _, a := t.pool.Node(h)
	return a
}

// children 返回子节点句柄，缺失节点的子节点仍为缺失。
func (t *PersistentSegmentTree[T]) children(h Handle) (Handle, Handle) {
	if h == nilHandle {
		return nilHandle, nilHandle
	}
	l, r, _ := t.pool.Node(h)
	return l, r
}

// Set 以版本 base 为基础，将位置 pos 的值设为 value，返回新版本号 (可持久化数组语义)。
func (t *PersistentSegmentTree[T]) Set(base Version, pos int, value T) (Version, error) {
	return t.derive("set", base, pos, func(T) T { return value })
}

// Add 以版本 base 为基础，将位置 pos 的值与 delta 合并，返回新版本号 (计数语义传入 +1)。
func (t *PersistentSegmentTree[T]) Add(base Version, pos int, delta T) (Version, error) {
	return t.derive("add", base, pos, func(old T) T { return t.monoid.Combine(old, delta) })
}

// derive 校验参数后沿路径复制产生新版本。失败时回收本次分配的节点，版本表不变。
func (t *PersistentSegmentTree[T]) derive(op string, base Version, pos int, leaf func(T) T) (v Version, err error) {
	start := time.Now()
	defer func() { t.inst.observe(op, start, err) }()

	if pos < 1 || pos > t.n {
		return 0, xerrors.ErrOutOfRange.Withf("position %d not in [1, %d]", pos, t.n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, err := t.versions.root(base)
	if err != nil {
		return 0, err
	}

	m := t.pool.mark()
	root, err := t.update(prev, 1, t.n, pos, leaf)
	if err != nil {
		t.pool.rollback(m)
		t.logger.Warn("persistent segment tree update aborted",
			"op", op, "base", base, "pos", pos, "nodes", t.pool.Len(), "error", err)
		return 0, err
	}

	v = t.versions.publish(root)
	t.inst.gauges(t.pool.Len(), t.versions.len())
	t.logger.Debug("version published", "op", op, "base", base, "pos", pos, "version", v)
	return v, nil
}

// update 复制 prev 到 pos 路径上的节点，未访问的子节点句柄原样复用。
func (t *PersistentSegmentTree[T]) update(prev Handle, l, r, pos int, leaf func(T) T) (Handle, error) {
	if l == r {
		return t.pool.Allocate(nilHandle, nilHandle, leaf(t.agg(prev)))
	}

	left, right := t.children(prev)
	mid := l + (r-l)>>1
	var err error
	if pos <= mid {
		left, err = t.update(left, l, mid, pos, leaf)
	} else {
		right, err = t.update(right, mid+1, r, pos, leaf)
	}
	if err != nil {
		return nilHandle, err
	}
	return t.pool.Allocate(left, right, t.monoid.Combine(t.agg(left), t.agg(right)))
}

// Query 查询版本 v 中 [lo, hi] 的聚合值。lo/hi 会被裁剪到 [1, n]，空区间返回单位元。
func (t *PersistentSegmentTree[T]) Query(v Version, lo, hi int) (T, error) {
	root, err := t.versions.root(v)
	if err != nil {
		t.inst.count("query", "error")
		return t.monoid.Identity(), err
	}
	lo, hi = max(lo, 1), min(hi, t.n)
	if lo > hi {
		return t.monoid.Identity(), nil
	}
	return t.query(root, 1, t.n, lo, hi), nil
}

func (t *PersistentSegmentTree[T]) query(h Handle, l, r, lo, hi int) T {
	// 缺失子树整体为单位元
	if h == nilHandle {
		return t.monoid.Identity()
	}
	left, right, a := t.pool.Node(h)
	if lo <= l && r <= hi {
		return a
	}
	mid := l + (r-l)>>1
	res := t.monoid.Identity()
	if lo <= mid {
		res = t.monoid.Combine(res, t.query(left, l, mid, lo, hi))
	}
	if hi > mid {
		res = t.monoid.Combine(res, t.query(right, mid+1, r, lo, hi))
	}
	return res
}

// Get 返回版本 v 中位置 pos 的值。
func (t *PersistentSegmentTree[T]) Get(v Version, pos int) (T, error) {
	if pos < 1 || pos > t.n {
		return t.monoid.Identity(), xerrors.ErrOutOfRange.Withf("position %d not in [1, %d]", pos, t.n)
	}
	return t.Query(v, pos, pos)
}

// Total 返回版本 v 整个值域的聚合值 (根节点聚合值)。
func (t *PersistentSegmentTree[T]) Total(v Version) (T, error) {
	root, err := t.versions.root(v)
	if err != nil {
		return t.monoid.Identity(), err
	}
	return t.agg(root), nil
}

// Snapshot 将版本 v 展开为长度 n 的切片，下标 i 对应坐标 i+1。
func (t *PersistentSegmentTree[T]) Snapshot(v Version) ([]T, error) {
	root, err := t.versions.root(v)
	if err != nil {
		return nil, err
	}
	out := make([]T, t.n)
	t.collect(root, 1, t.n, out)
	return out, nil
}

func (t *PersistentSegmentTree[T]) collect(h Handle, l, r int, out []T) {
	if h == nilHandle {
		for i := l; i <= r; i++ {
			out[i-1] = t.monoid.Identity()
		}
		return
	}
	left, right, a := t.pool.Node(h)
	if l == r {
		out[l-1] = a
		return
	}
	mid := l + (r-l)>>1
	t.collect(left, l, mid, out)
	t.collect(right, mid+1, r, out)
}

// Latest 返回最新版本号。
func (t *PersistentSegmentTree[T]) Latest() Version {
	return Version(t.versions.len() - 1)
}

// Len 返回已发布的版本数。
func (t *PersistentSegmentTree[T]) Len() int {
	return t.versions.len()
}

// Size 返回值域大小 n。
func (t *PersistentSegmentTree[T]) Size() int {
	return t.n
}

// NodeCount 返回节点池中已分配的节点数。
func (t *PersistentSegmentTree[T]) NodeCount() int {
	return t.pool.Len()
}

// Name 返回树名称。
func (t *PersistentSegmentTree[T]) Name() string {
	return t.name
}

// Verify 检查版本 v 中每个节点都满足 agg = Combine(agg(left), agg(right))，叶子没有子节点。
func (t *PersistentSegmentTree[T]) Verify(v Version) error {
	root, err := t.versions.root(v)
	if err != nil {
		return err
	}
	return t.verify(root, 1, t.n, make(map[Handle]struct{}))
}

// VerifyAll 检查全部已发布版本。共享节点只检查一次。
func (t *PersistentSegmentTree[T]) VerifyAll(ctx context.Context) error {
	n := t.versions.len()
	defer logging.LogDuration(ctx, t.logger, "verify_all", "versions", n, "nodes", t.pool.Len())()

	seen := make(map[Handle]struct{})
	for v := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		root, err := t.versions.root(Version(v))
		if err != nil {
			return err
		}
		if err := t.verify(root, 1, t.n, seen); err != nil {
			t.logger.ErrorContext(ctx, "persistent segment tree invariant violated", "version", v, "error", err)
			return err
		}
	}
	return nil
}

func (t *PersistentSegmentTree[T]) verify(h Handle, l, r int, seen map[Handle]struct{}) error {
	if h == nilHandle {
		return nil
	}
	if _, ok := seen[h]; ok {
		return nil
	}
	seen[h] = struct{}{}

	left, right, a := t.pool.Node(h)
	if l == r {
		if left != nilHandle || right != nilHandle {
			return xerrors.ErrCorruptNode.Withf("leaf %d at [%d, %d] has children", h, l, r)
		}
		return nil
	}
	if want := t.monoid.Combine(t.agg(left), t.agg(right)); !t.monoid.Equal(a, want) {
		return xerrors.ErrCorruptNode.Withf("node %d at [%d, %d]: aggregate %v, children combine to %v", h, l, r, a, want)
	}
	mid := l + (r-l)>>1
	if err := t.verify(left, l, mid, seen); err != nil {
		return err
	}
	return t.verify(right, mid+1, r, seen)
}
