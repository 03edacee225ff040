package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CaptureSampleSize 采集模式下每个 IMU 样本的字节数（6 个 i16 小端）
const CaptureSampleSize = 12

// ErrMisalignedPayload 负载长度不是样本大小的整数倍
var ErrMisalignedPayload = errors.New("misaligned payload")

// CaptureSample 原始 IMU 样本（传感器原始计数）
type CaptureSample struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// DecodeCaptureSamples 解码一个采集通知中的全部样本
func DecodeCaptureSamples(b []byte) ([]CaptureSample, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty capture payload", ErrInsufficientData)
	}
	if len(b)%CaptureSampleSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMisalignedPayload, len(b), CaptureSampleSize)
	}

	samples := make([]CaptureSample, 0, len(b)/CaptureSampleSize)
	for off := 0; off+CaptureSampleSize <= len(b); off += CaptureSampleSize {
		p := b[off : off+CaptureSampleSize]
		samples = append(samples, CaptureSample{
			Ax: int16(binary.LittleEndian.Uint16(p[0:])),
			Ay: int16(binary.LittleEndian.Uint16(p[2:])),
			Az: int16(binary.LittleEndian.Uint16(p[4:])),
			Gx: int16(binary.LittleEndian.Uint16(p[6:])),
			Gy: int16(binary.LittleEndian.Uint16(p[8:])),
			Gz: int16(binary.LittleEndian.Uint16(p[10:])),
		})
	}
	return samples, nil
}

// AccelG 按每 g 的 LSB 数把加速度计数换算为 g
func (s CaptureSample) AccelG(lsbPerG float64) (ax, ay, az float64) {
	return float64(s.Ax) / lsbPerG, float64(s.Ay) / lsbPerG, float64(s.Az) / lsbPerG
}
