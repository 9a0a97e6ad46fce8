package engine

import "sort"

// balanceTeams splits a committed lobby's searches into teams. Parties are
// atomic: a party lands on one team whole. FFA assigns every player their
// own singleton team. Team playlists use an exact minimum-difference
// partition for small lobbies and a snake draft above the exact-search
// ceiling.
func balanceTeams(playlist Playlist, searches []*SearchObject, players map[PlayerID]*Player, cfg Config) [][]PlayerID {
	if playlist.IsFFA() {
		var teams [][]PlayerID
		for _, s := range searches {
			for _, pid := range s.Members {
				teams = append(teams, []PlayerID{pid})
			}
		}
		return teams
	}

	teamCount := playlist.TeamCount()
	units := partyUnits(searches, players)

	const smallModePlayerCeiling = 16
	if cfg.UseExactTeamBalancing && playlist.RequiredPlayers() <= smallModePlayerCeiling && teamCount == 2 {
		return exactTwoTeamPartition(units)
	}
	return snakeDraft(units, teamCount)
}

// partyUnit is one atomic block that must land on a single team: a party,
// or a solo search treated as a party of one.
type partyUnit struct {
	members []PlayerID
	skill   float64 // sum of member skills, the unit's weight
}

func partyUnits(searches []*SearchObject, players map[PlayerID]*Player) []partyUnit {
	units := make([]partyUnit, 0, len(searches))
	for _, s := range searches {
		var sum float64
		for _, pid := range s.Members {
			if p, ok := players[pid]; ok {
				sum += p.Skill
			}
		}
		units = append(units, partyUnit{members: append([]PlayerID(nil), s.Members...), skill: sum})
	}
	return units
}

// exactTwoTeamPartition assigns units to two teams by exhaustive bitmask
// search, minimizing head-count imbalance first and team-skill difference
// second. Feasible because the small-mode ceiling caps len(units) well
// below the point where 2^n matters.
func exactTwoTeamPartition(units []partyUnit) [][]PlayerID {
	n := len(units)
	totalSkill := 0.0
	totalSize := 0
	for _, u := range units {
		totalSkill += u.skill
		totalSize += len(u.members)
	}

	bestMask := 0
	bestSizeGap := -1
	bestSkillGap := 0.0
	for mask := 0; mask < (1 << n); mask++ {
		var sumA float64
		sizeA := 0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sumA += units[i].skill
				sizeA += len(units[i].members)
			}
		}
		sizeGap := 2*sizeA - totalSize
		if sizeGap < 0 {
			sizeGap = -sizeGap
		}
		skillGap := absFloat(2*sumA - totalSkill)
		if bestSizeGap < 0 || sizeGap < bestSizeGap ||
			(sizeGap == bestSizeGap && skillGap < bestSkillGap) {
			bestSizeGap = sizeGap
			bestSkillGap = skillGap
			bestMask = mask
		}
	}

	var teamA, teamB []PlayerID
	for i := 0; i < n; i++ {
		if bestMask&(1<<i) != 0 {
			teamA = append(teamA, units[i].members...)
		} else {
			teamB = append(teamB, units[i].members...)
		}
	}
	return [][]PlayerID{teamA, teamB}
}

// snakeDraft assigns units to teamCount teams in descending-skill order
// using a serpentine (1,2,...,N,N,...,2,1) pick sequence.
func snakeDraft(units []partyUnit, teamCount int) [][]PlayerID {
	sorted := append([]partyUnit(nil), units...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].skill > sorted[j].skill })

	teams := make([][]PlayerID, teamCount)

	forward := true
	idx := 0
	for _, u := range sorted {
		pick := idx
		if !forward {
			pick = teamCount - 1 - idx
		}
		teams[pick] = append(teams[pick], u.members...)

		idx++
		if idx == teamCount {
			idx = 0
			forward = !forward
		}
	}
	return teams
}
