package engine

import "math"

// MatchResult is the resolved outcome of a completed Match: which team
// won, whether it was a blowout, and the per-player performance samples
// used to update retention and, optionally, skill.
type MatchResult struct {
	Match           *Match
	WinningTeam     int      // index into Match.Teams, -1 for FFA
	WinningFFA      PlayerID // winning player for FFA, -1 otherwise
	IsBlowout       bool
	BlowoutSeverity BlowoutSeverity
	Performance     map[PlayerID]float64 // signed KD-style performance in [-1, 1]
}

// logistic is the standard sigmoid, used both for win probability and the
// logistic retention form.
func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// winProbability returns P(team A beats team B) from the gap between their
// average skills, scaled by Gamma.
func winProbability(skillA, skillB, gamma float64) float64 {
	return logistic(gamma * (skillA - skillB))
}

// resolveMatch draws the winner and performance samples for a completed
// match and classifies blowouts per cfg.BlowoutModel.
func resolveMatch(m *Match, players map[PlayerID]*Player, cfg Config, rng *rng) *MatchResult {
	result := &MatchResult{Match: m, WinningTeam: -1, WinningFFA: -1, Performance: make(map[PlayerID]float64)}

	if m.Playlist.IsFFA() {
		resolveFFA(m, players, cfg, rng, result)
		return result
	}

	if len(m.TeamAvgSkill) != 2 {
		return result
	}

	pWinA := winProbability(m.TeamAvgSkill[0], m.TeamAvgSkill[1], cfg.Gamma)
	winner := 0
	if !rng.bernoulli(pWinA) {
		winner = 1
	}
	result.WinningTeam = winner

	skillGap := absFloat(m.TeamAvgSkill[0] - m.TeamAvgSkill[1])
	result.IsBlowout, result.BlowoutSeverity = classifyBlowout(skillGap, pWinA, cfg, rng)

	for ti, team := range m.Teams {
		won := ti == winner
		for _, pid := range team {
			skill := 0.0
			if p, ok := players[pid]; ok {
				skill = p.Skill
			}
			result.Performance[pid] = sampleKDPerformance(skill, won, result.IsBlowout, cfg.PerformanceNoiseStd, rng)
		}
	}
	return result
}

func resolveFFA(m *Match, players map[PlayerID]*Player, cfg Config, rng *rng, result *MatchResult) {
	// FFA ranks every singleton team by skill plus a noise term (a clamped
	// normal-ish draw scaled by 0.3); the top performer wins.
	type entry struct {
		pid   PlayerID
		score float64
	}
	var entries []entry
	for _, team := range m.Teams {
		if len(team) == 0 {
			continue
		}
		pid := team[0]
		skill := 0.0
		if p, ok := players[pid]; ok {
			skill = p.Skill
		}
		entries = append(entries, entry{pid, skill + rng.normalish()*0.3})
	}
	best := -1
	bestScore := 0.0
	for i, e := range entries {
		if best < 0 || e.score > bestScore {
			best = i
			bestScore = e.score
		}
	}
	if best >= 0 {
		result.WinningFFA = entries[best].pid
	}
	for _, e := range entries {
		won := e.pid == result.WinningFFA
		skill := 0.0
		if p, ok := players[e.pid]; ok {
			skill = p.Skill
		}
		result.Performance[e.pid] = sampleKDPerformance(skill, won, false, cfg.PerformanceNoiseStd, rng)
	}
}

// classifyBlowout decides whether a match was a lopsided win and its
// severity. The score is
// c_skill · max(0, (|ΔS|−0.1)/0.4) + c_imbalance · 2·|P−0.5|, where ΔS is
// the raw-skill gap between teams and P is team A's win probability; it is
// monotone non-decreasing in both |ΔS| and |P−0.5| under either model.
// Severity always derives from the score against the mild/moderate/severe
// thresholds, independent of which draw decided IsBlowout.
func classifyBlowout(skillGap, pWinA float64, cfg Config, rng *rng) (bool, BlowoutSeverity) {
	skillComponent := (skillGap - 0.1) / 0.4
	if skillComponent < 0 {
		skillComponent = 0
	}
	imbalance := 2 * absFloat(pWinA-0.5)
	score := cfg.BlowoutSkillCoefficient*skillComponent + cfg.BlowoutImbalanceCoefficient*imbalance

	severity := BlowoutNone
	switch {
	case score >= cfg.BlowoutSevereThreshold:
		severity = BlowoutSevere
	case score >= cfg.BlowoutModerateThreshold:
		severity = BlowoutModerate
	case score >= cfg.BlowoutMildThreshold:
		severity = BlowoutMild
	}

	var isBlowout bool
	switch cfg.BlowoutModel {
	case BlowoutModelBernoulli:
		isBlowout = rng.bernoulli(clamp01(score))
	default: // BlowoutModelThreshold
		isBlowout = score >= cfg.BlowoutMildThreshold
	}
	return isBlowout, severity
}

// kdPerformanceLambda returns the expected kill/death counts for a player
// given their raw skill and match outcome: kills rise and deaths fall with
// skill and with winning, so stronger or winning players trend positive.
// A blowout sharpens the spread in either direction.
func kdPerformanceLambda(skill float64, won, blowout bool) (killLambda, deathLambda float64) {
	killLambda = 10 + 6*skill
	deathLambda = 10 - 6*skill
	if won {
		killLambda += 4
		deathLambda -= 2
	} else {
		killLambda -= 2
		deathLambda += 4
	}
	if blowout {
		if won {
			killLambda += 3
			deathLambda -= 1
		} else {
			killLambda -= 1
			deathLambda += 3
		}
	}
	if killLambda < 1 {
		killLambda = 1
	}
	if deathLambda < 1 {
		deathLambda = 1
	}
	return killLambda, deathLambda
}

// sampleKDPerformance draws a kill/death-based performance sample for one
// player, normalized into [-1, 1] via tanh((k-d)/(k+d+1)). noiseStd widens
// the lambdas so otherwise identical matches don't produce identical KD
// lines.
func sampleKDPerformance(skill float64, won, blowout bool, noiseStd float64, rng *rng) float64 {
	killLambda, deathLambda := kdPerformanceLambda(skill, won, blowout)
	killLambda += rng.normalish() * noiseStd * killLambda
	deathLambda += rng.normalish() * noiseStd * deathLambda
	if killLambda < 1 {
		killLambda = 1
	}
	if deathLambda < 1 {
		deathLambda = 1
	}
	kills := rng.poisson(killLambda)
	deaths := rng.poisson(deathLambda)
	return math.Tanh(float64(kills-deaths) / float64(kills+deaths+1))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
