package inference

import "math"

// Conditioner 去除重力分量并做单极点低通滤波
type Conditioner struct {
	alpha    float64
	filtered float64
}

// NewConditioner 创建信号调理器
func NewConditioner(alpha float64) *Conditioner {
	return &Conditioner{alpha: alpha}
}

// Process 输入三轴加速度（g），返回滤波后的线性加速度幅值
func (c *Conditioner) Process(ax, ay, az float64) float64 {
	raw := math.Sqrt(ax*ax + ay*ay + az*az)
	linear := math.Abs(raw - 1.0)
	c.filtered += c.alpha * (linear - c.filtered)
	return c.filtered
}

// Last 最近一次的滤波输出
func (c *Conditioner) Last() float64 {
	return c.filtered
}

// Reset 清空滤波器状态
func (c *Conditioner) Reset() {
	c.filtered = 0
}
