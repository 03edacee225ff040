package inference

// Window 固定容量的 FIFO，满后淘汰最旧的样本
type Window struct {
	data []float64
	pos  int
	full bool
}

// NewWindow 创建窗口
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{data: make([]float64, capacity)}
}

// Push 追加一个样本
func (w *Window) Push(v float64) {
	w.data[w.pos] = v
	w.pos++
	if w.pos >= len(w.data) {
		w.pos = 0
		w.full = true
	}
}

// Len 当前样本数
func (w *Window) Len() int {
	if w.full {
		return len(w.data)
	}
	return w.pos
}

// Cap 容量
func (w *Window) Cap() int {
	return len(w.data)
}

// Full 是否已满
func (w *Window) Full() bool {
	return w.full
}

// Slice 按时间顺序返回样本副本
func (w *Window) Slice() []float64 {
	out := make([]float64, w.Len())
	if w.full {
		n := copy(out, w.data[w.pos:])
		copy(out[n:], w.data[:w.pos])
	} else {
		copy(out, w.data[:w.pos])
	}
	return out
}

// Reset 清空
func (w *Window) Reset() {
	w.pos = 0
	w.full = false
}
