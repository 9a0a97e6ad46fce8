package engine

import "sort"

// candidateDistance is the weighted pairing metric between two searches: a
// lower value is a better pairing. Geo and skill terms are normalized to
// [0, 1] before weighting so the four weights are comparable regardless of
// playlist or region; the input/platform terms are mismatch fractions and
// already live in [0, 1].
func candidateDistance(cfg Config, region Region, players map[PlayerID]*Player, a, b *SearchObject) float64 {
	geoKm := greatCircleKm(a.AvgLocation, b.AvgLocation)
	const maxRelevantKm = 20000.0 // ~half the Earth's circumference
	geoTerm := geoKm / maxRelevantKm
	if geoTerm > 1 {
		geoTerm = 1
	}

	skillTerm := absFloat(a.AvgPercentile - b.AvgPercentile)
	inputTerm, platformTerm := crossMismatchFractions(players, a, b)

	wGeo := cfg.effectiveWeightGeo(region)
	return wGeo*geoTerm +
		cfg.WeightSkill*skillTerm +
		cfg.WeightInput*inputTerm +
		cfg.WeightPlatform*platformTerm
}

// crossMismatchFractions returns the fraction of (memberOfA, memberOfB)
// cross-pairs whose input device differs, and separately whose platform
// differs.
func crossMismatchFractions(players map[PlayerID]*Player, a, b *SearchObject) (inputFrac, platformFrac float64) {
	pairs := 0
	inputMismatch := 0
	platformMismatch := 0
	for _, aid := range a.Members {
		pa, ok := players[aid]
		if !ok {
			continue
		}
		for _, bid := range b.Members {
			pb, ok := players[bid]
			if !ok {
				continue
			}
			pairs++
			if pa.Input != pb.Input {
				inputMismatch++
			}
			if pa.Platform != pb.Platform {
				platformMismatch++
			}
		}
	}
	if pairs == 0 {
		return 0, 0
	}
	return float64(inputMismatch) / float64(pairs), float64(platformMismatch) / float64(pairs)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// runMatchmaking performs one matchmaking pass across every playlist: for
// each playlist, refresh every queued search's admissible-DC set, order the
// queue oldest first (SearchID as tiebreaker), then greedily grow a lobby
// around each unmatched seed from its top-K nearest feasible candidates
// until the lobby is full or the candidates are exhausted.
//
// A search accepted by several playlists sits in each of their queues;
// committing it in one pass marks it matched, and every queue drops matched
// entries on its next sweep.
func runMatchmaking(
	queue map[Playlist][]*SearchObject,
	players map[PlayerID]*Player,
	dcs []*DataCenter,
	dcByID map[DataCenterID]*DataCenter,
	cfg Config,
	currentTick int64,
	rng *rng,
	nextMatchID *MatchID,
) []*Match {
	var formed []*Match

	for _, playlist := range AllPlaylists() {
		searches := queue[playlist]
		if len(searches) == 0 {
			continue
		}

		live := searches[:0]
		for _, s := range searches {
			if !s.matched {
				live = append(live, s)
			}
		}
		searches = live

		for _, s := range searches {
			refreshAdmissibleDCs(s, players, dcs, cfg, currentTick)
		}

		sort.Slice(searches, func(i, j int) bool {
			if searches[i].StartTick != searches[j].StartTick {
				return searches[i].StartTick < searches[j].StartTick
			}
			return searches[i].ID < searches[j].ID
		})

		required := playlist.RequiredPlayers()
		matchedThisPass := make(map[SearchID]bool)

		for _, seed := range searches {
			if matchedThisPass[seed.ID] || seed.matched {
				continue
			}
			if !seed.AcceptsPlaylist(playlist) {
				continue
			}
			if seed.Size() > required {
				continue
			}

			lobby := newLobbyCandidate()
			seedRegion := nearestRegion(seed.AvgLocation, dcs)
			if !lobby.canAdd(seed, playlist, required, cfg, currentTick) {
				continue
			}
			lobby.add(seed)
			matchedThisPass[seed.ID] = true

			for lobby.size < required {
				candidate := pickNearestCandidate(searches, players, matchedThisPass, seed, seedRegion, playlist, required, lobby, cfg, currentTick)
				if candidate == nil {
					break
				}
				lobby.add(candidate)
				matchedThisPass[candidate.ID] = true
			}

			if lobby.size != required {
				if !admitUnderfull(cfg, lobby, seed, currentTick) {
					// Release these searches back to the queue.
					for _, s := range lobby.searches {
						delete(matchedThisPass, s.ID)
					}
					continue
				}
			}

			if cfg.EnableServerCapacityGuard {
				dc := pickDCForLobby(lobby, dcByID)
				if dc == nil || dc.AvailableServers(playlist) < 1 {
					for _, s := range lobby.searches {
						delete(matchedThisPass, s.ID)
					}
					continue
				}
			}

			m := commitLobby(lobby, playlist, dcs, dcByID, players, cfg, currentTick, rng, nextMatchID)
			formed = append(formed, m)
		}

		remaining := searches[:0]
		for _, s := range searches {
			if !matchedThisPass[s.ID] && !s.matched {
				remaining = append(remaining, s)
			}
		}
		queue[playlist] = remaining
	}

	return formed
}

// admitUnderfull decides whether a lobby short of RequiredPlayers may still
// be committed: only when enabled in config, the lobby holds at least two
// players, and every search in it has waited at least
// UnderfullWaitFloorSeconds.
func admitUnderfull(cfg Config, lobby *lobbyCandidate, seed *SearchObject, currentTick int64) bool {
	if !cfg.AllowUnderfullLobbies {
		return false
	}
	if lobby.size < 2 {
		return false
	}
	for _, s := range lobby.searches {
		if s.WaitSeconds(currentTick, cfg.TickIntervalSeconds) < cfg.UnderfullWaitFloorSeconds {
			return false
		}
	}
	return true
}

// pickNearestCandidate scans the remaining unmatched searches in the same
// playlist queue and returns the lowest-distance feasible one, restricted
// to the top-K closest by distance. K caps the per-seed feasibility work in
// large queues.
func pickNearestCandidate(
	searches []*SearchObject,
	players map[PlayerID]*Player,
	matched map[SearchID]bool,
	seed *SearchObject,
	seedRegion Region,
	playlist Playlist,
	required int,
	lobby *lobbyCandidate,
	cfg Config,
	currentTick int64,
) *SearchObject {
	type scored struct {
		s    *SearchObject
		dist float64
	}
	var pool []scored

	for _, cand := range searches {
		if matched[cand.ID] || cand.matched || cand.ID == seed.ID {
			continue
		}
		if !cand.AcceptsPlaylist(playlist) {
			continue
		}
		if lobby.size+cand.Size() > required {
			continue
		}
		pool = append(pool, scored{cand, candidateDistance(cfg, seedRegion, players, seed, cand)})
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].dist != pool[j].dist {
			return pool[i].dist < pool[j].dist
		}
		return pool[i].s.ID < pool[j].s.ID
	})

	k := cfg.TopKCandidates
	if k > len(pool) {
		k = len(pool)
	}

	for i := 0; i < k; i++ {
		cand := pool[i].s
		if lobby.canAdd(cand, playlist, required, cfg, currentTick) {
			return cand
		}
	}
	return nil
}

// nearestRegion returns the region of the geographically closest DC to loc,
// used to select which region's WeightGeo override applies to the seed's
// own distance scoring. MaxPing overrides are applied per DC region in
// refreshAdmissibleDCs, not through this.
func nearestRegion(loc location, dcs []*DataCenter) Region {
	best := RegionOther
	bestDist := -1.0
	for _, dc := range dcs {
		d := greatCircleKm(loc, dc.Location)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = dc.Region
		}
	}
	return best
}

// pickDCForLobby returns the lowest-ID admissible DC shared by every search
// in the lobby, or nil if somehow none remain (canAdd keeps the running
// intersection non-empty).
func pickDCForLobby(lobby *lobbyCandidate, dcByID map[DataCenterID]*DataCenter) *DataCenter {
	var ids []DataCenterID
	for id, ok := range lobby.dcs {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if dc, ok := dcByID[id]; ok {
			return dc
		}
	}
	return nil
}

// matchQualityCost scores a committed pairing; lower is better. Delta ping
// normalizes against the backoff ceiling, disparity against the full
// raw-skill range, and wait against a ten-minute reference.
func matchQualityCost(cfg Config, avgDeltaPing, skillDisparity, avgWaitSeconds float64) float64 {
	const waitReferenceSeconds = 600.0
	pingTerm := 0.0
	if cfg.DeltaPingMax > 0 {
		pingTerm = avgDeltaPing / cfg.DeltaPingMax
	}
	return cfg.QualityWeightPing*pingTerm +
		cfg.QualityWeightSkillBalance*skillDisparity/2 +
		cfg.QualityWeightWaitTime*avgWaitSeconds/waitReferenceSeconds
}

// commitLobby finalizes a feasible lobby into a Match: it picks a DC,
// acquires server capacity, balances teams, and moves every member player
// into StateInMatch, recording their wait time and delta ping.
func commitLobby(
	lobby *lobbyCandidate,
	playlist Playlist,
	dcs []*DataCenter,
	dcByID map[DataCenterID]*DataCenter,
	players map[PlayerID]*Player,
	cfg Config,
	currentTick int64,
	rng *rng,
	nextMatchID *MatchID,
) *Match {
	dc := pickDCForLobby(lobby, dcByID)
	if dc == nil && len(dcs) > 0 {
		dc = dcs[0]
	}
	dc.acquire(playlist)

	var allMembers []PlayerID
	for _, s := range lobby.searches {
		allMembers = append(allMembers, s.Members...)
		s.matched = true
	}

	teams := balanceTeams(playlist, lobby.searches, players, cfg)

	teamAvgSkill := make([]float64, len(teams))
	var totalDeltaPing float64
	for ti, team := range teams {
		var sum float64
		for _, pid := range team {
			if p, ok := players[pid]; ok {
				sum += p.Skill
				totalDeltaPing += p.DeltaPingTo(dc.ID)
			}
		}
		if len(team) > 0 {
			teamAvgSkill[ti] = sum / float64(len(team))
		}
	}

	skillDisparity := 0.0
	if len(teamAvgSkill) > 0 {
		lo, hi := teamAvgSkill[0], teamAvgSkill[0]
		for _, v := range teamAvgSkill {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		skillDisparity = hi - lo
	}
	avgDeltaPing := 0.0
	if len(allMembers) > 0 {
		avgDeltaPing = totalDeltaPing / float64(len(allMembers))
	}

	var totalWait float64
	for _, s := range lobby.searches {
		totalWait += s.WaitSeconds(currentTick, cfg.TickIntervalSeconds) * float64(s.Size())
	}
	avgWait := 0.0
	if len(allMembers) > 0 {
		avgWait = totalWait / float64(len(allMembers))
	}

	id := *nextMatchID
	*nextMatchID++

	quality := matchQualityCost(cfg, avgDeltaPing, skillDisparity, avgWait)

	durationJitter := rng.uniform(0.8, 1.2)
	m := &Match{
		ID:             id,
		Playlist:       playlist,
		DC:             dc.ID,
		Teams:          teams,
		TeamAvgSkill:   teamAvgSkill,
		StartTick:      currentTick,
		DurationTicks:  int64(playlist.NominalDurationSeconds() * durationJitter / cfg.TickIntervalSeconds),
		SkillDisparity: skillDisparity,
		AvgDeltaPing:   avgDeltaPing,
		AvgWaitSeconds: avgWait,
		Quality:        quality,
	}

	for _, s := range lobby.searches {
		waitSeconds := s.WaitSeconds(currentTick, cfg.TickIntervalSeconds)
		for _, pid := range s.Members {
			p, ok := players[pid]
			if !ok {
				continue
			}
			matchID := id
			p.State = StateInMatch
			p.CurrentMatch = &matchID
			p.SearchStartAt = nil
			p.recordSearchTime(waitSeconds)
			p.recordDeltaPing(p.DeltaPingTo(dc.ID))
		}
	}

	return m
}
