package engine

import "sort"

// regionMix describes the relative population weight and geographic center
// of a regional cluster, used by GeneratePopulation to build a plausible
// global playerbase. These five centers are a sampling convenience distinct
// from the DataCenter Region tag: an "Oceania" center's players will
// typically resolve to an AsiaPacific DC (Australia) by nearest-ping, not
// by this label; no default DC carries RegionOther.
type regionMix struct {
	region Region
	weight float64
	center location
}

const (
	regionLatJitter = 10.0
	regionLonJitter = 15.0
)

func defaultRegionMixes() []regionMix {
	return []regionMix{
		{RegionNorthAmerica, 0.35, location{Lat: 39.0, Lon: -95.0}},
		{RegionEurope, 0.30, location{Lat: 50.0, Lon: 10.0}},
		{RegionAsiaPacific, 0.20, location{Lat: 35.0, Lon: 105.0}},
		{RegionOther, 0.08, location{Lat: -25.0, Lon: 135.0}}, // Oceania center
		{RegionSouthAmerica, 0.07, location{Lat: -15.0, Lon: -55.0}},
	}
}

// pickRegion draws a region from the mixture's weights.
func pickRegion(mixes []regionMix, r *rng) regionMix {
	roll := r.float64()
	cumulative := 0.0
	for _, m := range mixes {
		cumulative += m.weight
		if roll < cumulative {
			return m
		}
	}
	return mixes[len(mixes)-1]
}

// GeneratePopulation builds n players distributed across the default
// regional mixture, assigns platforms/input devices/skill/location, wires
// up ping tables against every DC, groups a PartyPlayerFraction share of
// them into parties, and assigns initial skill percentiles and buckets.
// Player IDs are dense and sequential from zero.
func GeneratePopulation(n int, dcs []*DataCenter, cfg Config, r *rng) ([]*Player, map[PartyID]*Party) {
	mixes := defaultRegionMixes()
	players := make([]*Player, 0, n)

	for i := 0; i < n; i++ {
		mix := pickRegion(mixes, r)
		loc := location{
			Lat: mix.center.Lat + r.uniform(-regionLatJitter, regionLatJitter),
			Lon: mix.center.Lon + r.uniform(-regionLonJitter, regionLonJitter),
		}
		skill := r.normalish()

		platform := Platform(r.intn(3))
		input := InputMouseKeyboard
		if r.bernoulli(0.6) {
			input = InputController
		}

		pings := make(map[DataCenterID]float64, len(dcs))
		bestDC := DataCenterID(-1)
		bestPing := -1.0
		for _, dc := range dcs {
			km := greatCircleKm(loc, dc.Location)
			ping := km/100.0 + 15.0 + r.uniform(-7.5, 7.5)
			if ping < 10 {
				ping = 10
			}
			pings[dc.ID] = ping
			if bestPing < 0 || ping < bestPing {
				bestPing = ping
				bestDC = dc.ID
			}
		}

		preferred := map[Playlist]bool{PlaylistTDM: true}
		if r.bernoulli(0.4) {
			preferred[PlaylistDomination] = true
		}
		if r.bernoulli(0.2) {
			preferred[PlaylistSND] = true
		}

		players = append(players, &Player{
			ID:                 PlayerID(i),
			Location:           loc,
			Platform:           platform,
			Input:              input,
			Skill:              skill,
			State:              StateOffline,
			PreferredPlaylists: preferred,
			Pings:              pings,
			BestDC:             bestDC,
			BestPing:           bestPing,
			ContinuationBase:   r.uniform(0.6, 0.95),
		})
	}

	recomputePercentiles(players, cfg.NumSkillBuckets)

	parties := assignParties(players, cfg, r)

	return players, parties
}

// assignParties groups a PartyPlayerFraction share of players into parties
// of size 2-4. Party members are drawn from players sharing the same BestDC
// so geography stays coherent; DC pools are processed in ID order so the
// draw sequence is reproducible.
func assignParties(players []*Player, cfg Config, r *rng) map[PartyID]*Party {
	parties := make(map[PartyID]*Party)

	byDC := make(map[DataCenterID][]*Player)
	for _, p := range players {
		byDC[p.BestDC] = append(byDC[p.BestDC], p)
	}
	dcIDs := make([]DataCenterID, 0, len(byDC))
	for id := range byDC {
		dcIDs = append(dcIDs, id)
	}
	sort.Slice(dcIDs, func(i, j int) bool { return dcIDs[i] < dcIDs[j] })

	nextID := PartyID(0)
	targetPartied := int(float64(len(players)) * cfg.PartyPlayerFraction)
	partied := 0

	for _, dcID := range dcIDs {
		pool := byDC[dcID]
		idx := r.shuffledIndices(len(pool))
		i := 0
		for i < len(idx) && partied < targetPartied {
			size := 2 + r.intn(3)
			if i+size > len(idx) {
				size = len(idx) - i
			}
			if size < 2 {
				break
			}
			members := make([]PlayerID, 0, size)
			for k := 0; k < size; k++ {
				p := pool[idx[i+k]]
				members = append(members, p.ID)
			}
			pid := nextID
			nextID++
			party := &Party{ID: pid, Members: members, LeaderID: members[0]}
			parties[pid] = party
			for k := 0; k < size; k++ {
				partyID := pid
				pool[idx[i+k]].PartyID = &partyID
			}
			i += size
			partied += size
		}
	}

	return parties
}
