package domain

import (
	"sort"
	"time"
)

// Question is a single prompt/answer pair inside a round.
type Question struct {
	UID           string `json:"uid" yaml:"uid"`
	Question      string `json:"question" yaml:"question"`
	Answer        string `json:"answer" yaml:"answer"`
	QuestionImage string `json:"questionImage,omitempty" yaml:"questionImage,omitempty"`
	AnswerImage   string `json:"answerImage,omitempty" yaml:"answerImage,omitempty"`
}

// Round groups questions. Order is host-assigned and only used for sorting in the editor.
type Round struct {
	UID       string     `json:"uid" yaml:"uid"`
	Title     string     `json:"title" yaml:"title"`
	Order     int        `json:"order" yaml:"order"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Quiz is the persisted document a host plays from.
type Quiz struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Author    string    `json:"author" yaml:"author"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Rounds    []Round   `json:"rounds" yaml:"rounds"`
}

// SortRoundsByOrder stable-sorts rounds by their order field so that list
// position (used during a session) agrees with what the host sees.
func (q *Quiz) SortRoundsByOrder() {
	sort.SliceStable(q.Rounds, func(i, j int) bool {
		return q.Rounds[i].Order < q.Rounds[j].Order
	})
}

// QuestionCount returns the number of questions across all rounds.
func (q Quiz) QuestionCount() int {
	n := 0
	for _, r := range q.Rounds {
		n += len(r.Questions)
	}
	return n
}

// Verdict is the per-question grading state of a player.
type Verdict int

const (
	VerdictUngraded Verdict = iota
	VerdictCorrect
	VerdictIncorrect
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	default:
		return "ungraded"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "correct":
		*v = VerdictCorrect
	case "incorrect":
		*v = VerdictIncorrect
	default:
		*v = VerdictUngraded
	}
	return nil
}

// Player is the record stored at sessions/<id>/players/<name>.
// IsCorrect is nil while ungraded.
type Player struct {
	UID       string `json:"uid,omitempty"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Answer    string `json:"answer"`
	IsCorrect *bool  `json:"isCorrect"`
	Color     string `json:"color"`
	JoinedAt  int64  `json:"joinedAt,omitempty"`
}

// Verdict maps the tri-state isCorrect flag.
func (p Player) Verdict() Verdict {
	switch {
	case p.IsCorrect == nil:
		return VerdictUngraded
	case *p.IsCorrect:
		return VerdictCorrect
	default:
		return VerdictIncorrect
	}
}

// WithVerdict returns a copy of p with isCorrect set from v.
func (p Player) WithVerdict(v Verdict) Player {
	switch v {
	case VerdictCorrect:
		t := true
		p.IsCorrect = &t
	case VerdictIncorrect:
		f := false
		p.IsCorrect = &f
	default:
		p.IsCorrect = nil
	}
	return p
}

// PlayersInJoinOrder flattens a player map into join order (joinedAt, then name).
func PlayersInJoinOrder(players map[string]Player) []Player {
	out := make([]Player, 0, len(players))
	for key, p := range players {
		if p.Name == "" {
			p.Name = key
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].Name < out[j].Name
	})
	return out
}
