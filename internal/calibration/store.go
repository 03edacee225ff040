package calibration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-collar/internal/models"
)

// ErrInvalidActivity 只有 rest / walk / run 有校准档案
var ErrInvalidActivity = errors.New("calibration: activity has no profile")

// 档案来源
const (
	SourceNone     = ""
	SourceFull     = "full"
	SourceLegacy   = "legacy"
	SourceRecorded = "recorded"
)

// Profiles 三种活动的校准档案快照
type Profiles struct {
	Rest       models.Features `json:"rest"`
	Walk       models.Features `json:"walk"`
	Run        models.Features `json:"run"`
	Calibrated bool            `json:"calibrated"`
	Source     string          `json:"source,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
}

// For 取某个活动的档案；play 没有档案
func (p Profiles) For(label models.Label) (models.Features, bool) {
	switch label {
	case models.LabelRest:
		return p.Rest, true
	case models.LabelWalk:
		return p.Walk, true
	case models.LabelRun:
		return p.Run, true
	}
	return models.Features{}, false
}

// Store 校准档案存储。可被 HTTP 处理器和推理流水线并发访问。
type Store struct {
	mu       sync.RWMutex
	profiles Profiles
	have     [3]bool // 单独录制时已就绪的档案
	now      func() time.Time
}

// NewStore 创建未校准的存储
func NewStore() *Store {
	return &Store{now: time.Now}
}

// ApplyFull 应用完整的 6 值校准
func (s *Store) ApplyFull(rest, walk, run models.Features) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(rest, walk, run, SourceFull)
}

// ApplyLegacy 应用 3 值（均值）校准，其余特征按固定倍数估算
func (s *Store) ApplyLegacy(restMean, walkMean, runMean float64) {
	rest, walk, run := LegacyProfiles(restMean, walkMean, runMean)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(rest, walk, run, SourceLegacy)
}

func (s *Store) set(rest, walk, run models.Features, source string) {
	s.profiles = Profiles{
		Rest:       rest,
		Walk:       walk,
		Run:        run,
		Calibrated: true,
		Source:     source,
		UpdatedAt:  s.now(),
	}
	s.have = [3]bool{true, true, true}
}

// SetProfile 替换单个活动的档案（录制校准的结果）。
// 三个档案都就绪后才进入已校准状态。
func (s *Store) SetProfile(label models.Label, f models.Features) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch label {
	case models.LabelRest:
		s.profiles.Rest = f
	case models.LabelWalk:
		s.profiles.Walk = f
	case models.LabelRun:
		s.profiles.Run = f
	default:
		return fmt.Errorf("%w: %s", ErrInvalidActivity, label)
	}
	s.have[label] = true
	s.profiles.UpdatedAt = s.now()
	if s.have[0] && s.have[1] && s.have[2] {
		s.profiles.Calibrated = true
		s.profiles.Source = SourceRecorded
	}
	return nil
}

// Profiles 当前档案快照
func (s *Store) Profiles() Profiles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles
}

// IsCalibrated 是否已校准
func (s *Store) IsCalibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles.Calibrated
}

// Restore 从持久化结果恢复，不改变 UpdatedAt。
// have 标记哪些档案已持久化；缺失的档案之后可以单独录制补齐。
func (s *Store) Restore(p Profiles, have [3]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Calibrated = have[0] && have[1] && have[2]
	s.profiles = p
	s.have = have
}

// Reset 回到未校准状态
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = Profiles{}
	s.have = [3]bool{}
}
