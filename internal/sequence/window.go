package sequence

// Window 固定容量的已接收序号集合
// 环形缓冲记录插入顺序，满时淘汰最早插入的序号，行为确定、可复现
type Window struct {
	ring    []int
	next    int
	size    int
	members map[int]struct{}
}

// NewWindow 创建容量为 capacity 的窗口
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Window{
		ring:    make([]int, capacity),
		members: make(map[int]struct{}, capacity),
	}
}

// Contains 序号是否仍在窗口内
func (w *Window) Contains(seq int) bool {
	_, ok := w.members[seq]
	return ok
}

// Add 插入序号，返回被淘汰的序号（若有）
// 调用方须保证 seq 不在窗口内
func (w *Window) Add(seq int) (evicted int, ok bool) {
	if w.size == len(w.ring) {
		evicted, ok = w.ring[w.next], true
		delete(w.members, evicted)
	} else {
		w.size++
	}
	w.ring[w.next] = seq
	w.members[seq] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return evicted, ok
}

// Len 当前元素个数
func (w *Window) Len() int { return w.size }

// Cap 容量
func (w *Window) Cap() int { return len(w.ring) }
