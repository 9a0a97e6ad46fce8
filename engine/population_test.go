package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePopulation_Basics(t *testing.T) {
	cfg := DefaultConfig()
	dcs := defaultDataCenters()
	r := newRNG(1)

	const n = 2000
	players, _ := GeneratePopulation(n, dcs, cfg, r)
	require.Len(t, players, n)

	for i, p := range players {
		require.Equal(t, PlayerID(i), p.ID, "IDs must be dense and sequential")
		require.Equal(t, StateOffline, p.State)

		require.GreaterOrEqual(t, p.Skill, -1.0)
		require.LessOrEqual(t, p.Skill, 1.0)
		require.Greater(t, p.Percentile, 0.0)
		require.Less(t, p.Percentile, 1.0)
		require.GreaterOrEqual(t, p.Bucket, 1)
		require.LessOrEqual(t, p.Bucket, cfg.NumSkillBuckets)

		require.True(t, p.PreferredPlaylists[PlaylistTDM], "every player prefers TDM")

		require.Len(t, p.Pings, len(dcs))
		best := -1.0
		for _, ping := range p.Pings {
			require.GreaterOrEqual(t, ping, 10.0)
			if best < 0 || ping < best {
				best = ping
			}
		}
		require.Equal(t, best, p.BestPing, "cached best ping must match the table minimum")
		require.Equal(t, best, p.Pings[p.BestDC])
	}
}

func TestGeneratePopulation_AttributeMix(t *testing.T) {
	cfg := DefaultConfig()
	dcs := defaultDataCenters()
	r := newRNG(2)

	const n = 10000
	players, _ := GeneratePopulation(n, dcs, cfg, r)

	controller := 0
	platformCounts := make(map[Platform]int)
	domination := 0
	snd := 0
	for _, p := range players {
		if p.Input == InputController {
			controller++
		}
		platformCounts[p.Platform]++
		if p.PreferredPlaylists[PlaylistDomination] {
			domination++
		}
		if p.PreferredPlaylists[PlaylistSND] {
			snd++
		}
	}

	assert.InDelta(t, 0.6, float64(controller)/n, 0.03)
	for _, plat := range []Platform{PlatformPC, PlatformPlayStation, PlatformXbox} {
		assert.InDelta(t, 1.0/3.0, float64(platformCounts[plat])/n, 0.03)
	}
	assert.InDelta(t, 0.4, float64(domination)/n, 0.03)
	assert.InDelta(t, 0.2, float64(snd)/n, 0.03)
}

func TestGeneratePopulation_PercentilesMonotone(t *testing.T) {
	cfg := DefaultConfig()
	dcs := defaultDataCenters()
	r := newRNG(3)

	players, _ := GeneratePopulation(500, dcs, cfg, r)
	for _, a := range players {
		for _, b := range players {
			if a.Skill < b.Skill {
				require.Less(t, a.Percentile, b.Percentile)
			}
		}
	}
}

func TestGeneratePopulation_Parties(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartyPlayerFraction = 0.3
	dcs := defaultDataCenters()
	r := newRNG(4)

	const n = 5000
	players, parties := GeneratePopulation(n, dcs, cfg, r)

	partied := 0
	memberOf := make(map[PlayerID]PartyID)
	for _, party := range parties {
		require.GreaterOrEqual(t, party.Size(), 2)
		require.LessOrEqual(t, party.Size(), 4)
		require.Equal(t, party.Members[0], party.LeaderID)
		for _, pid := range party.Members {
			_, dup := memberOf[pid]
			require.False(t, dup, "player %d in two parties", pid)
			memberOf[pid] = party.ID
			partied++
		}
	}

	// The fraction is a target, not exact: the last party formed can
	// overshoot it by up to three players.
	assert.InDelta(t, 0.3, float64(partied)/n, 0.05)

	for _, p := range players {
		if pid, ok := memberOf[p.ID]; ok {
			require.NotNil(t, p.PartyID)
			require.Equal(t, pid, *p.PartyID)
		} else {
			require.Nil(t, p.PartyID)
		}
	}
}

func TestGeneratePopulation_NoParties(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartyPlayerFraction = 0
	dcs := defaultDataCenters()
	r := newRNG(5)

	players, parties := GeneratePopulation(200, dcs, cfg, r)
	assert.Empty(t, parties)
	for _, p := range players {
		assert.Nil(t, p.PartyID)
	}
}

func TestGeneratePopulation_Deterministic(t *testing.T) {
	cfg := DefaultConfig()

	playersA, partiesA := GeneratePopulation(300, defaultDataCenters(), cfg, newRNG(99))
	playersB, partiesB := GeneratePopulation(300, defaultDataCenters(), cfg, newRNG(99))

	require.Len(t, playersB, len(playersA))
	for i := range playersA {
		a, b := playersA[i], playersB[i]
		require.Equal(t, a.Location, b.Location)
		require.Equal(t, a.Skill, b.Skill)
		require.Equal(t, a.Percentile, b.Percentile)
		require.Equal(t, a.Platform, b.Platform)
		require.Equal(t, a.Input, b.Input)
		require.Equal(t, a.BestDC, b.BestDC)
		require.Equal(t, a.BestPing, b.BestPing)
	}
	require.Len(t, partiesB, len(partiesA))
	for id, pa := range partiesA {
		pb, ok := partiesB[id]
		require.True(t, ok)
		require.Equal(t, pa.Members, pb.Members)
	}
}
