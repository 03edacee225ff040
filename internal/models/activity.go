package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Label 活动标签（与项圈固件的枚举顺序一致）
type Label uint8

const (
	LabelRest Label = iota
	LabelWalk
	LabelRun
	LabelPlay
)

// LabelCount 标签数量
const LabelCount = 4

var labelNames = [LabelCount]string{"rest", "walk", "run", "play"}

func (l Label) String() string {
	if int(l) < LabelCount {
		return labelNames[l]
	}
	return fmt.Sprintf("label(%d)", uint8(l))
}

// Valid 是否在 0..3 范围内
func (l Label) Valid() bool {
	return int(l) < LabelCount
}

// Active 非休息状态
func (l Label) Active() bool {
	return l != LabelRest
}

// ClampLabel 将固件上报的原始值限制到 0..3
func ClampLabel(raw int) Label {
	if raw < 0 {
		return LabelRest
	}
	if raw >= LabelCount {
		return LabelPlay
	}
	return Label(raw)
}

// ParseLabel 解析标签名称（不区分大小写），也接受数字
func ParseLabel(s string) (Label, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range labelNames {
		if s == name {
			return Label(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < LabelCount {
		return Label(n), nil
	}
	return LabelRest, fmt.Errorf("unknown activity label: %q", s)
}

// MarshalText 以名称形式序列化
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 解析名称或数字
func (l *Label) UnmarshalText(b []byte) error {
	v, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Features 一个窗口的统计特征（也作为校准档案使用）
type Features struct {
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Variance float64 `json:"variance"`
	RMS      float64 `json:"rms"`
	Peak     float64 `json:"peak"`
	Energy   float64 `json:"energy"`
}
