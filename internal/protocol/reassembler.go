package protocol

// DefaultBufferSize 接收缓冲区默认容量
const DefaultBufferSize = 8192

// Reassembler 把任意切分的通知分片还原为定长记录。
// 非并发安全，只能在链路事件循环里使用。
type Reassembler struct {
	buf       []byte
	n         int
	overflows int
}

// NewReassembler 创建帧重组器，capacity 小于一条记录时使用默认容量
func NewReassembler(capacity int) *Reassembler {
	if capacity < RecordSize {
		capacity = DefaultBufferSize
	}
	return &Reassembler{buf: make([]byte, capacity)}
}

// Feed 追加一个分片并返回其中所有完整记录（按到达顺序）。
// 缓冲区放不下时清空缓冲并丢弃该分片。
func (r *Reassembler) Feed(fragment []byte) []Record {
	if len(fragment) == 0 {
		return nil
	}
	if r.n+len(fragment) > len(r.buf) {
		r.n = 0
		r.overflows++
		return nil
	}
	r.n += copy(r.buf[r.n:], fragment)

	var records []Record
	off := 0
	for r.n-off >= RecordSize {
		rec, err := DecodeRecord(r.buf[off : off+RecordSize])
		if err != nil {
			break
		}
		records = append(records, rec)
		off += RecordSize
	}

	if off > 0 {
		r.n = copy(r.buf, r.buf[off:r.n])
	}
	return records
}

// Reset 丢弃缓冲中的残余字节
func (r *Reassembler) Reset() {
	r.n = 0
}

// Buffered 当前残余的字节数
func (r *Reassembler) Buffered() int {
	return r.n
}

// Overflows 因溢出而丢弃分片的次数
func (r *Reassembler) Overflows() int {
	return r.overflows
}
