package inference

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/models"
)

var (
	// ErrAlreadyRecording 已有校准录制在进行
	ErrAlreadyRecording = errors.New("inference: calibration recording already in progress")
	// ErrNotRecording 没有进行中的校准录制
	ErrNotRecording = errors.New("inference: no calibration recording in progress")
	// ErrNoSamples 录制期间没有收到样本
	ErrNoSamples = errors.New("inference: no samples recorded")
)

// ProfileSource 提供校准档案（calibration.Store 实现）
type ProfileSource interface {
	Profiles() calibration.Profiles
}

// Config 流水线参数
type Config struct {
	Alpha              float64
	WindowSize         int
	VoteWindow         int
	StabilityThreshold int
	Sensitivity        float64
}

// DefaultConfig 10Hz、1 秒窗口的默认参数
func DefaultConfig() Config {
	return Config{
		Alpha:              0.15,
		WindowSize:         10,
		VoteWindow:         5,
		StabilityThreshold: 3,
		Sensitivity:        1.0,
	}
}

// Result 一个样本的处理结果
type Result struct {
	Filtered    float64
	Ready       bool // 窗口已满并完成了一次分类
	Raw         models.Label
	Label       models.Label // 稳定标签
	Changed     bool
	Features    models.Features
	Distances   map[string]float64
	Calibrating bool
}

// Recording 进行中的校准录制
type Recording struct {
	Activity models.Label `json:"activity"`
	Samples  int          `json:"samples"`
}

// Pipeline 调理 -> 窗口 -> 特征 -> 分类 -> 稳定。单实例状态由互斥锁保护，同一时刻只有一个调用方修改。
type Pipeline struct {
	mu sync.Mutex

	cfg         Config
	profiles    ProfileSource
	conditioner *Conditioner
	window      *Window
	stabilizer  *Stabilizer

	recording    bool
	recActivity  models.Label
	recSamples   []float64
	lastFeatures models.Features
}

// NewPipeline 创建推理流水线
func NewPipeline(cfg Config, profiles ProfileSource) *Pipeline {
	if !ValidSensitivity(cfg.Sensitivity) {
		cfg.Sensitivity = 1
	}
	return &Pipeline{
		cfg:         cfg,
		profiles:    profiles,
		conditioner: NewConditioner(cfg.Alpha),
		window:      NewWindow(cfg.WindowSize),
		stabilizer:  NewStabilizer(cfg.VoteWindow, cfg.StabilityThreshold),
	}
}

// Process 处理一个三轴加速度样本（g）
func (p *Pipeline) Process(ax, ay, az float64) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.conditioner.Process(ax, ay, az)
	p.window.Push(v)

	res := Result{Filtered: v, Label: p.stabilizer.Current()}

	// 录制期间只收集样本，不分类
	if p.recording {
		p.recSamples = append(p.recSamples, v)
		res.Calibrating = true
		res.Raw = p.recActivity
		res.Label = p.recActivity
		return res
	}

	if !p.window.Full() {
		return res
	}

	features := Extract(p.window.Slice())
	profiles := p.profiles.Profiles()
	raw := Classify(features, profiles, p.cfg.Sensitivity)
	stable, changed := p.stabilizer.Push(raw)
	p.lastFeatures = features

	res.Ready = true
	res.Raw = raw
	res.Label = stable
	res.Changed = changed
	res.Features = features
	if profiles.Calibrated {
		res.Distances = map[string]float64{
			models.LabelRest.String(): Distance(features, profiles.Rest),
			models.LabelWalk.String(): Distance(features, profiles.Walk),
			models.LabelRun.String():  Distance(features, profiles.Run),
		}
	}
	return res
}

// StartCalibration 开始录制某个活动的校准样本
func (p *Pipeline) StartCalibration(activity models.Label) error {
	if _, ok := (calibration.Profiles{}).For(activity); !ok {
		return fmt.Errorf("%w: %s", calibration.ErrInvalidActivity, activity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recording {
		return ErrAlreadyRecording
	}
	p.recording = true
	p.recActivity = activity
	p.recSamples = p.recSamples[:0]
	return nil
}

// StopCalibration 结束录制并返回录制样本的特征
func (p *Pipeline) StopCalibration() (models.Label, models.Features, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.recording {
		return 0, models.Features{}, ErrNotRecording
	}

	activity := p.recActivity
	samples := p.recSamples
	p.recording = false
	p.recSamples = nil

	if len(samples) == 0 {
		return activity, models.Features{}, ErrNoSamples
	}
	return activity, Extract(samples), nil
}

// Recording 当前录制状态
func (p *Pipeline) Recording() (Recording, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.recording {
		return Recording{}, false
	}
	return Recording{Activity: p.recActivity, Samples: len(p.recSamples)}, true
}

// ValidSensitivity 灵敏度必须是有限正数
func ValidSensitivity(sf float64) bool {
	return sf > 0 && !math.IsInf(sf, 0) && !math.IsNaN(sf)
}

// SetSensitivity 调整灵敏度
func (p *Pipeline) SetSensitivity(sf float64) error {
	if !ValidSensitivity(sf) {
		return fmt.Errorf("invalid sensitivity: %v", sf)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Sensitivity = sf
	return nil
}

// Sensitivity 当前灵敏度
func (p *Pipeline) Sensitivity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Sensitivity
}

// Current 当前稳定标签
func (p *Pipeline) Current() models.Label {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stabilizer.Current()
}

// LastFeatures 最近一次完整窗口的特征
func (p *Pipeline) LastFeatures() models.Features {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFeatures
}

// Reset 清空滤波器、窗口和稳定器
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conditioner.Reset()
	p.window.Reset()
	p.stabilizer.Reset()
	p.lastFeatures = models.Features{}
}
