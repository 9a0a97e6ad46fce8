package engine

import "sort"

// applyRetention updates a player's recent-experience rings from a just-
// completed match, then rolls a continuation draw; a false result means
// the player goes offline instead of returning to the lobby.
func applyRetention(p *Player, result *MatchResult, cfg Config, rng *rng) bool {
	won := p.ID == result.WinningFFA
	if !result.Match.Playlist.IsFFA() {
		for ti, team := range result.Match.Teams {
			for _, pid := range team {
				if pid == p.ID {
					won = ti == result.WinningTeam
				}
			}
		}
	}

	p.MatchesPlayed++
	if won {
		p.Wins++
	} else {
		p.Losses++
	}
	p.recordBlowout(result.IsBlowout)

	perf := result.Performance[p.ID]
	pContinue := continuationProbability(p, perf, cfg)
	return rng.bernoulli(pContinue)
}

// continuationProbability computes P(player queues again) under the
// configured retention formulation. Both forms decrease with higher
// ping/wait/blowout exposure, increase with win rate and performance, and
// are clamped into [Floor, 1]. perf arrives already normalized to [-1, 1].
func continuationProbability(p *Player, perf float64, cfg Config) float64 {
	rp := cfg.Retention
	avgDeltaPing := p.avgRecentDeltaPing(rp.ExperienceWindow)
	avgSearch := p.avgRecentSearchTime(rp.ExperienceWindow)
	blowoutRate := p.recentBlowoutRate(rp.ExperienceWindow)
	winRate := p.winRate()

	var v float64
	switch cfg.RetentionModel {
	case RetentionModelSimplified:
		v = p.ContinuationBase +
			rp.ThetaPing*avgDeltaPing +
			rp.ThetaSearch*avgSearch +
			rp.ThetaBlowout*blowoutRate +
			rp.ThetaWin*(winRate-0.5) +
			rp.ThetaPerf*perf
	default: // RetentionModelLogistic
		v = logistic(rp.Base +
			rp.ThetaPing*avgDeltaPing +
			rp.ThetaSearch*avgSearch +
			rp.ThetaBlowout*blowoutRate +
			rp.ThetaWin*(winRate-0.5) +
			rp.ThetaPerf*perf)
	}
	if v < rp.Floor {
		return rp.Floor
	}
	if v > 1 {
		return 1
	}
	return v
}

// maybeEvolveSkill applies the optional skill-evolution update
// s ← s + α·(y − E[y]), off by default. y is this player's normalized
// in-match performance; lobbyAvgPerf is E[y], the match-wide average, so a
// player only gains skill for beating their lobby's average outcome.
// Percentiles are left untouched here; recomputePercentiles re-ranks the
// whole population once per batch.
func maybeEvolveSkill(p *Player, perf, lobbyAvgPerf float64, cfg Config) {
	if !cfg.EnableSkillEvolution {
		return
	}
	delta := cfg.SkillLearningRate * (perf - lobbyAvgPerf)
	p.Skill += delta
	if p.Skill > 1 {
		p.Skill = 1
	}
	if p.Skill < -1 {
		p.Skill = -1
	}
}

// recomputePercentiles re-ranks every player's Skill into a fresh
// Percentile and Bucket: rank i becomes (i+0.5)/N. Equal skills break ties
// by player ID so the ranking is a total order.
func recomputePercentiles(players []*Player, buckets int) {
	sorted := append([]*Player(nil), players...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Skill != sorted[j].Skill {
			return sorted[i].Skill < sorted[j].Skill
		}
		return sorted[i].ID < sorted[j].ID
	})
	n := len(sorted)
	if n == 0 {
		return
	}
	for i, p := range sorted {
		p.Percentile = (float64(i) + 0.5) / float64(n)
		p.updateBucket(buckets)
	}
}
