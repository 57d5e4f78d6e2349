package algorithm

import (
	"sync/atomic"

	"github.com/wyfcoding/pstree/xerrors"
)

// Version 版本号。版本 0 由建树产生，之后每次更新追加一个。
type Version int

// versionTable 版本号 -> 根句柄。单写者追加，读者无锁。
// 新版本的全部节点写完后才发布根句柄，atomic 的 Store/Load 保证读者看到完整的树。
type versionTable struct {
	roots atomic.Pointer[[]Handle]
}

func newVersionTable(capacity int) *versionTable {
	roots := make([]Handle, 0, max(capacity, 1))
	vt := &versionTable{}
	vt.roots.Store(&roots)
	return vt
}

// publish 追加一个根句柄并返回其版本号。仅写者调用。
func (vt *versionTable) publish(root Handle) Version {
	cur := *vt.roots.Load()
	// 原地追加只写 len(cur) 位置，读者持有的切片长度都不超过 len(cur)
	next := append(cur, root)
	vt.roots.Store(&next)
	return Version(len(next) - 1)
}

// root 返回版本 v 的根句柄。
func (vt *versionTable) root(v Version) (Handle, error) {
	roots := *vt.roots.Load()
	if v < 0 || int(v) >= len(roots) {
		return nilHandle, xerrors.ErrUnknownVersion.Withf("version %d not in [0, %d)", v, len(roots))
	}
	return roots[v], nil
}

func (vt *versionTable) len() int {
	return len(*vt.roots.Load())
}
