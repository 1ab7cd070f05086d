package app

import (
	"strings"

	"trivia-session-service/internal/domain"
)

// Score computes the points awarded for one answer event and the
// participant's new streak. It is pure: no session state is consulted.
//
// arrivalRank is the 0-based count of already-correct answers for the
// question before this one, so the first correct answerer gets tier 0.
func Score(q domain.Question, priorStreak, arrivalRank int, correct bool, cfg domain.GameSettings) (points, newStreak int) {
	if !correct {
		return 0, 0
	}
	points = q.BaseScore + SpeedBonus(arrivalRank, cfg.SpeedBonuses, cfg.DefaultSpeedBonus)
	newStreak = priorStreak + 1
	if cfg.StreakBonusEnabled && newStreak > cfg.StreakMinimum {
		points += (newStreak - cfg.StreakMinimum) * cfg.StreakBonusPerLevel
	}
	return points, newStreak
}

// SpeedBonus returns tiers[rank] when the rank lands inside the configured
// tiers, otherwise the fallback.
func SpeedBonus(rank int, tiers []int, fallback int) int {
	if rank < len(tiers) {
		return tiers[rank]
	}
	return fallback
}

// AnswerIsCorrect matches a submission against the question. Free-text
// answers compare case-insensitively after trimming; empty submissions are
// always wrong. Choice questions require an exact index match.
func AnswerIsCorrect(q domain.Question, chosenIndex int, chosenText string) bool {
	if q.Kind == domain.KindOpenText {
		submitted := strings.ToLower(strings.TrimSpace(chosenText))
		expected := strings.ToLower(strings.TrimSpace(q.CorrectText))
		return submitted != "" && submitted == expected
	}
	return chosenIndex == q.CorrectIndex
}
