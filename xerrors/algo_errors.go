package xerrors

// 可持久化线段树相关的哨兵错误。调用方通过 errors.Is 判定，返回时使用 Withf 派生副本。
var (
	// ErrOutOfRange 坐标不在建树时确定的值域 [1, n] 内。
	ErrOutOfRange = New(ErrInvalidArg, 400101, "coordinate out of range", "coordinate must lie in the domain fixed at build time", nil)
	// ErrRankOutOfRange 第 k 小查询的 k 超出区间内元素个数。
	ErrRankOutOfRange = New(ErrInvalidArg, 400102, "rank out of range", "k must satisfy 1 <= k <= count in range", nil)
	// ErrInvalidDomain 值域大小非法。
	ErrInvalidDomain = New(ErrInvalidArg, 400103, "invalid domain", "domain size must be positive", nil)
	// ErrInvalidVersionPair 差分查询的低版本比高版本更新。
	ErrInvalidVersionPair = New(ErrInvalidArg, 400104, "invalid version pair", "low version must not be newer than high version", nil)
	// ErrUnknownVersion 版本号从未由 Build/Update 返回。
	ErrUnknownVersion = New(ErrNotFound, 404101, "unknown version", "version was never published", nil)
	// ErrOutOfMemory 节点池耗尽。
	ErrOutOfMemory = New(ErrLimitExceeded, 429101, "node pool exhausted", "node limit reached", nil)
	// ErrCorruptNode 节点聚合值与子节点不一致。
	ErrCorruptNode = New(ErrInternal, 500101, "corrupt node", "aggregate differs from combined children", nil)
)
