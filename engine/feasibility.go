package engine

// Backoff functions widen admissible tolerances monotonically with wait
// time and are bounded above by their *_max. Wait time is always measured
// in seconds (ticks waited times the tick interval), never raw ticks.

// deltaPingTolerance returns Δπ(w): the admissible ping delta above a
// search's best ping.
func (c Config) deltaPingTolerance(waitSeconds float64) float64 {
	v := c.DeltaPingInitial + c.DeltaPingRate*waitSeconds
	if v > c.DeltaPingMax {
		return c.DeltaPingMax
	}
	return v
}

// skillSimilarityHalfWidth returns σ(w): half the admissible skill-window
// width for a single search.
func (c Config) skillSimilarityHalfWidth(waitSeconds float64) float64 {
	v := c.SkillSimilarityInitial + c.SkillSimilarityRate*waitSeconds
	if v > c.SkillSimilarityMax {
		return c.SkillSimilarityMax
	}
	return v
}

// maxSkillDisparity returns Δs(w): the admissible lobby-wide skill
// disparity for a single search.
func (c Config) maxSkillDisparity(waitSeconds float64) float64 {
	v := c.MaxSkillDisparityInitial + c.MaxSkillDisparityRate*waitSeconds
	if v > c.MaxSkillDisparityMax {
		return c.MaxSkillDisparityMax
	}
	return v
}

// refreshAdmissibleDCs recomputes s.AdmissibleDCs: a DC is admissible iff
// every member's ping to it is within both the hard max-ping ceiling and
// the wait-relaxed delta-ping tolerance relative to that member's own best
// ping. Runs once per live search per tick.
func refreshAdmissibleDCs(s *SearchObject, players map[PlayerID]*Player, dcs []*DataCenter, cfg Config, currentTick int64) {
	waitSeconds := s.WaitSeconds(currentTick, cfg.TickIntervalSeconds)
	tolerance := cfg.deltaPingTolerance(waitSeconds)

	admissible := make(map[DataCenterID]bool, len(dcs))
	for _, dc := range dcs {
		maxPing := cfg.effectiveMaxPing(dc.Region)
		ok := true
		for _, pid := range s.Members {
			pl, exists := players[pid]
			if !exists {
				ok = false
				break
			}
			ping := pl.PingTo(dc.ID)
			if ping > maxPing || ping > pl.BestPing+tolerance {
				ok = false
				break
			}
		}
		if ok {
			admissible[dc.ID] = true
		}
	}
	s.AdmissibleDCs = admissible
}

// lobbyCandidate is the working state of a lobby being grown by the
// greedy matchmaker: the set of searches tentatively assigned plus derived
// aggregates needed for cheap feasibility re-checks.
type lobbyCandidate struct {
	searches []*SearchObject
	minPerc  float64
	maxPerc  float64
	size     int
	dcs      map[DataCenterID]bool // running intersection of admissible DCs
}

func newLobbyCandidate() *lobbyCandidate {
	return &lobbyCandidate{minPerc: 1, maxPerc: 0, dcs: nil}
}

// canAdd reports whether adding s to this lobby keeps it feasible: size,
// per-member skill window, per-member disparity ceiling, and a non-empty
// DC intersection. The optional server-capacity guard is applied at commit
// time in the matchmaker, not during growth.
func (lc *lobbyCandidate) canAdd(s *SearchObject, m Playlist, required int, cfg Config, currentTick int64) bool {
	if lc.size+s.Size() > required {
		return false
	}

	newMin := lc.minPerc
	newMax := lc.maxPerc
	if lc.size == 0 {
		newMin, newMax = s.AvgPercentile, s.AvgPercentile
	} else {
		if s.AvgPercentile < newMin {
			newMin = s.AvgPercentile
		}
		if s.AvgPercentile > newMax {
			newMax = s.AvgPercentile
		}
	}
	disparity := newMax - newMin

	// Rule 2/3: every member of the growing lobby (including the new
	// search) must still find the combined disparity within its own
	// relaxed window.
	for _, existing := range lc.searches {
		w := existing.WaitSeconds(currentTick, cfg.TickIntervalSeconds)
		if disparity > 2*cfg.skillSimilarityHalfWidth(w) {
			return false
		}
		if disparity > cfg.maxSkillDisparity(w) {
			return false
		}
	}
	w := s.WaitSeconds(currentTick, cfg.TickIntervalSeconds)
	if disparity > 2*cfg.skillSimilarityHalfWidth(w) {
		return false
	}
	if disparity > cfg.maxSkillDisparity(w) {
		return false
	}

	// Rule 4: DC intersection must stay non-empty.
	if !intersectsNonEmpty(lc.dcs, s.AdmissibleDCs, lc.size == 0) {
		return false
	}

	return true
}

// add commits s into the lobby candidate, updating aggregates. Must only
// be called after canAdd returned true for the same s.
func (lc *lobbyCandidate) add(s *SearchObject) {
	if lc.size == 0 {
		lc.minPerc, lc.maxPerc = s.AvgPercentile, s.AvgPercentile
		lc.dcs = copyDCSet(s.AdmissibleDCs)
	} else {
		if s.AvgPercentile < lc.minPerc {
			lc.minPerc = s.AvgPercentile
		}
		if s.AvgPercentile > lc.maxPerc {
			lc.maxPerc = s.AvgPercentile
		}
		lc.dcs = intersectDCSets(lc.dcs, s.AdmissibleDCs)
	}
	lc.searches = append(lc.searches, s)
	lc.size += s.Size()
}

func intersectsNonEmpty(a, b map[DataCenterID]bool, aEmpty bool) bool {
	if aEmpty {
		return len(b) > 0
	}
	for dc := range a {
		if b[dc] {
			return true
		}
	}
	return false
}

func copyDCSet(src map[DataCenterID]bool) map[DataCenterID]bool {
	dst := make(map[DataCenterID]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func intersectDCSets(a, b map[DataCenterID]bool) map[DataCenterID]bool {
	result := make(map[DataCenterID]bool)
	for dc := range a {
		if b[dc] {
			result[dc] = true
		}
	}
	return result
}
