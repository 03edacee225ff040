package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 记录布局（小端）：
//
//	0..4  sensor_time_ms u32
//	4     label          u8
//	5     confidence     u8
//	6     battery        u8
//	7..11 seq            u32
const (
	RecordSize = 11
	AckSize    = 4

	offTime       = 0
	offLabel      = 4
	offConfidence = 5
	offBattery    = 6
	offSeq        = 7
)

// ErrInsufficientData 解码所需字节不足
var ErrInsufficientData = errors.New("insufficient data")

// Record 项圈上报的一条推理结果
type Record struct {
	SensorTimeMs uint32 `json:"sensor_time_ms"`
	Label        uint8  `json:"label"`
	Confidence   uint8  `json:"confidence"`
	Battery      uint8  `json:"battery"`
	Seq          uint32 `json:"seq"`
}

// DecodeRecord 从 b 的开头解码一条记录
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < RecordSize {
		return Record{}, fmt.Errorf("%w: record needs %d bytes, got %d", ErrInsufficientData, RecordSize, len(b))
	}
	return Record{
		SensorTimeMs: binary.LittleEndian.Uint32(b[offTime:]),
		Label:        b[offLabel],
		Confidence:   b[offConfidence],
		Battery:      b[offBattery],
		Seq:          binary.LittleEndian.Uint32(b[offSeq:]),
	}, nil
}

// AppendRecord 把记录按线格式追加到 dst（测试与回放工具使用）
func AppendRecord(dst []byte, r Record) []byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint32(buf[offTime:], r.SensorTimeMs)
	buf[offLabel] = r.Label
	buf[offConfidence] = r.Confidence
	buf[offBattery] = r.Battery
	binary.LittleEndian.PutUint32(buf[offSeq:], r.Seq)
	return append(dst, buf[:]...)
}

// AckFrame 主机 -> 项圈的确认帧
type AckFrame struct {
	Seq uint32
}

// MarshalBinary 4 字节小端 seq
func (a AckFrame) MarshalBinary() ([]byte, error) {
	b := make([]byte, AckSize)
	binary.LittleEndian.PutUint32(b, a.Seq)
	return b, nil
}

// Bytes 与 MarshalBinary 相同，但不返回 error
func (a AckFrame) Bytes() []byte {
	b, _ := a.MarshalBinary()
	return b
}

// DecodeAck 解码确认帧
func DecodeAck(b []byte) (AckFrame, error) {
	if len(b) < AckSize {
		return AckFrame{}, fmt.Errorf("%w: ack needs %d bytes, got %d", ErrInsufficientData, AckSize, len(b))
	}
	return AckFrame{Seq: binary.LittleEndian.Uint32(b)}, nil
}
