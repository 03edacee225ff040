package inference

import "wisefido-collar/internal/models"

// StabilizerState 稳定器状态快照
type StabilizerState struct {
	Current     models.Label   `json:"current"`
	Pending     models.Label   `json:"pending"`
	StableCount int            `json:"stable_count"`
	Recent      []models.Label `json:"recent"`
}

// Stabilizer 多数投票 + 连续计数迟滞，把原始标签流变成稳定标签流
type Stabilizer struct {
	votes     []models.Label
	next      int
	size      int
	threshold int

	current models.Label
	pending models.Label
	count   int
}

// NewStabilizer 创建稳定器；voteWindow 为投票环长度，threshold 为提交所需的连续次数
func NewStabilizer(voteWindow, threshold int) *Stabilizer {
	if voteWindow < 1 {
		voteWindow = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Stabilizer{
		votes:     make([]models.Label, 0, voteWindow),
		size:      voteWindow,
		threshold: threshold,
	}
}

// Push 加入一个原始标签（调用方保证在 0..3 内），返回当前稳定标签及是否刚发生切换
func (s *Stabilizer) Push(raw models.Label) (models.Label, bool) {
	if !raw.Valid() {
		raw = models.ClampLabel(int(raw))
	}
	if len(s.votes) < s.size {
		s.votes = append(s.votes, raw)
	} else {
		s.votes[s.next] = raw
		s.next = (s.next + 1) % s.size
	}

	voted := s.plurality()
	if voted == s.current {
		s.count = 0
		s.pending = voted
		return s.current, false
	}

	if voted == s.pending {
		s.count++
	} else {
		s.count = 1
		s.pending = voted
	}

	if s.count >= s.threshold {
		s.current = voted
		s.count = 0
		return s.current, true
	}
	return s.current, false
}

// plurality 票数最多的标签；平票取枚举值最小者
func (s *Stabilizer) plurality() models.Label {
	if len(s.votes) == 0 {
		return s.current
	}
	var counts [models.LabelCount]int
	for _, l := range s.votes {
		counts[l]++
	}
	best, most := s.current, 0
	for i, c := range counts {
		if c > most {
			best, most = models.Label(i), c
		}
	}
	return best
}

// Current 当前稳定标签
func (s *Stabilizer) Current() models.Label {
	return s.current
}

// State 状态快照（Recent 按时间顺序）
func (s *Stabilizer) State() StabilizerState {
	recent := make([]models.Label, 0, len(s.votes))
	if len(s.votes) < s.size {
		recent = append(recent, s.votes...)
	} else {
		recent = append(recent, s.votes[s.next:]...)
		recent = append(recent, s.votes[:s.next]...)
	}
	return StabilizerState{
		Current:     s.current,
		Pending:     s.pending,
		StableCount: s.count,
		Recent:      recent,
	}
}

// Reset 回到初始状态（REST）
func (s *Stabilizer) Reset() {
	s.votes = s.votes[:0]
	s.next = 0
	s.current = models.LabelRest
	s.pending = models.LabelRest
	s.count = 0
}
