package session

import "trivia-live/internal/domain"

// Grade applies a host verdict to a player record and reports whether the
// record changed. Re-grading with the same verdict is a no-op. Overturning an
// incorrect verdict marks the player correct without awarding a point.
func Grade(p domain.Player, correct bool) (domain.Player, bool) {
	switch p.Verdict() {
	case domain.VerdictCorrect:
		if correct {
			return p, false
		}
		p.Score--
		return p.WithVerdict(domain.VerdictIncorrect), true
	case domain.VerdictIncorrect:
		if !correct {
			return p, false
		}
		return p.WithVerdict(domain.VerdictCorrect), true
	default:
		if correct {
			p.Score++
			return p.WithVerdict(domain.VerdictCorrect), true
		}
		return p.WithVerdict(domain.VerdictIncorrect), true
	}
}
