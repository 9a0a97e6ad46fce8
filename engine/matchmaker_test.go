package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mmWorld is a hand-built matchmaking fixture: players colocated near a DC
// with controllable skill percentiles.
type mmWorld struct {
	cfg     Config
	dcs     []*DataCenter
	dcByID  map[DataCenterID]*DataCenter
	players map[PlayerID]*Player
	queue   map[Playlist][]*SearchObject

	nextSearch SearchID
	nextMatch  MatchID
	rng        *rng
}

func newMMWorld(cfg Config) *mmWorld {
	dcs := defaultDataCenters()
	dcByID := make(map[DataCenterID]*DataCenter, len(dcs))
	for _, dc := range dcs {
		dcByID[dc.ID] = dc
	}
	queue := make(map[Playlist][]*SearchObject)
	for _, pl := range AllPlaylists() {
		queue[pl] = nil
	}
	return &mmWorld{
		cfg:     cfg,
		dcs:     dcs,
		dcByID:  dcByID,
		players: make(map[PlayerID]*Player),
		queue:   queue,
		rng:     newRNG(1),
	}
}

// addSearch queues a solo search near US-East with the given percentile,
// started at the given tick.
func (w *mmWorld) addSearch(percentile float64, startTick int64, playlists ...Playlist) *SearchObject {
	id := PlayerID(len(w.players))
	loc := location{Lat: 39.0, Lon: -77.0}
	pings := make(map[DataCenterID]float64, len(w.dcs))
	bestDC := DataCenterID(-1)
	bestPing := -1.0
	for _, dc := range w.dcs {
		ping := greatCircleKm(loc, dc.Location)/100.0 + 15.0
		pings[dc.ID] = ping
		if bestPing < 0 || ping < bestPing {
			bestPing = ping
			bestDC = dc.ID
		}
	}
	accepted := make(map[Playlist]bool)
	if len(playlists) == 0 {
		playlists = []Playlist{PlaylistTDM}
	}
	for _, pl := range playlists {
		accepted[pl] = true
	}
	p := &Player{
		ID:                 id,
		Location:           loc,
		Skill:              percentile*2 - 1,
		Percentile:         percentile,
		State:              StateSearching,
		PreferredPlaylists: accepted,
		Pings:              pings,
		BestDC:             bestDC,
		BestPing:           bestPing,
	}
	w.players[id] = p

	s := &SearchObject{
		ID:                w.nextSearch,
		Members:           []PlayerID{id},
		AvgPercentile:     percentile,
		AvgLocation:       loc,
		AcceptedPlaylists: accepted,
		StartTick:         startTick,
	}
	w.nextSearch++
	for pl := range accepted {
		w.queue[pl] = append(w.queue[pl], s)
	}
	return s
}

func (w *mmWorld) run(tick int64) []*Match {
	return runMatchmaking(w.queue, w.players, w.dcs, w.dcByID, w.cfg, tick, w.rng, &w.nextMatch)
}

func TestRunMatchmaking_FormsFullLobby(t *testing.T) {
	w := newMMWorld(DefaultConfig())
	for i := 0; i < 12; i++ {
		w.addSearch(0.5, 0)
	}

	formed := w.run(1)
	require.Len(t, formed, 1)
	m := formed[0]

	assert.Equal(t, PlaylistTDM, m.Playlist)
	assert.Equal(t, 12, m.TotalPlayers())
	assert.Empty(t, w.queue[PlaylistTDM], "matched searches must leave the queue")

	for _, pid := range m.AllPlayers() {
		p := w.players[pid]
		require.Equal(t, StateInMatch, p.State)
		require.NotNil(t, p.CurrentMatch)
		require.Equal(t, m.ID, *p.CurrentMatch)
	}

	// Teams partition the lobby with no duplicates.
	seen := make(map[PlayerID]bool)
	for _, team := range m.Teams {
		for _, pid := range team {
			require.False(t, seen[pid])
			seen[pid] = true
		}
	}
	require.Len(t, seen, 12)

	assert.Greater(t, m.DurationTicks, int64(0))
	assert.GreaterOrEqual(t, m.AvgDeltaPing, 0.0)
	assert.GreaterOrEqual(t, m.Quality, 0.0)
}

func TestMatchQualityCost(t *testing.T) {
	cfg := DefaultConfig()

	perfect := matchQualityCost(cfg, 0, 0, 0)
	assert.Equal(t, 0.0, perfect)

	// Each degradation raises the cost.
	assert.Greater(t, matchQualityCost(cfg, 50, 0, 0), perfect)
	assert.Greater(t, matchQualityCost(cfg, 50, 0.4, 0), matchQualityCost(cfg, 50, 0, 0))
	assert.Greater(t, matchQualityCost(cfg, 50, 0.4, 120), matchQualityCost(cfg, 50, 0.4, 0))
}

func TestRunMatchmaking_UnderfullStaysQueued(t *testing.T) {
	w := newMMWorld(DefaultConfig())
	for i := 0; i < 11; i++ {
		w.addSearch(0.5, 0)
	}

	formed := w.run(1)
	assert.Empty(t, formed)
	assert.Len(t, w.queue[PlaylistTDM], 11)
	for _, p := range w.players {
		assert.Equal(t, StateSearching, p.State)
	}
}

func TestRunMatchmaking_UnderfullAdmittedPastWaitFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowUnderfullLobbies = true
	cfg.UnderfullWaitFloorSeconds = 60
	w := newMMWorld(cfg)
	for i := 0; i < 11; i++ {
		w.addSearch(0.5, 0)
	}

	// 5 ticks * 5s = 25s: below the floor, still queued.
	formed := w.run(5)
	require.Empty(t, formed)

	// 20 ticks * 5s = 100s: past the floor, the short lobby commits.
	formed = w.run(20)
	require.Len(t, formed, 1)
	assert.Equal(t, 11, formed[0].TotalPlayers())
}

func TestRunMatchmaking_SkillSplitBlocksLobby(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkillSimilarityInitial = 0.01
	cfg.SkillSimilarityRate = 0
	cfg.SkillSimilarityMax = 0.01
	w := newMMWorld(cfg)

	// Six low-skill and six high-skill searches: no feasible 12-lobby.
	for i := 0; i < 6; i++ {
		w.addSearch(0.1, 0)
		w.addSearch(0.9, 0)
	}

	formed := w.run(1)
	assert.Empty(t, formed)
	assert.Len(t, w.queue[PlaylistTDM], 12)
}

func TestRunMatchmaking_PrefersCloserSkill(t *testing.T) {
	cfg := DefaultConfig()
	w := newMMWorld(cfg)

	// Seed at 0.50 plus eleven close and four distant candidates: the
	// formed lobby should hold the close band only.
	w.addSearch(0.50, 0)
	for i := 0; i < 11; i++ {
		w.addSearch(0.50+float64(i+1)*0.002, 0)
	}
	for i := 0; i < 4; i++ {
		w.addSearch(0.95, 0)
	}

	formed := w.run(1)
	require.Len(t, formed, 1)
	for _, pid := range formed[0].AllPlayers() {
		require.InDelta(t, 0.5, w.players[pid].Percentile, 0.05)
	}
}

func TestRunMatchmaking_OldestSeedFirst(t *testing.T) {
	w := newMMWorld(DefaultConfig())

	// 13 searches: the oldest 12 should form the match, the newest waits.
	for i := 0; i < 13; i++ {
		w.addSearch(0.5, int64(i))
	}

	formed := w.run(13)
	require.Len(t, formed, 1)
	require.Len(t, w.queue[PlaylistTDM], 1)
	assert.Equal(t, SearchID(12), w.queue[PlaylistTDM][0].ID, "the youngest search stays queued")
}

func TestRunMatchmaking_MultiPlaylistSearchConsumedOnce(t *testing.T) {
	w := newMMWorld(DefaultConfig())

	// 12 searches accepting both TDM and Domination: one match forms and
	// both queues fully drain.
	for i := 0; i < 12; i++ {
		w.addSearch(0.5, 0, PlaylistTDM, PlaylistDomination)
	}

	formed := w.run(1)
	require.Len(t, formed, 1)
	assert.Empty(t, w.queue[PlaylistTDM])
	assert.Empty(t, w.queue[PlaylistDomination])
}

func TestRunMatchmaking_DCBusyCounter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableServerCapacityGuard = true
	w := newMMWorld(cfg)
	for i := 0; i < 12; i++ {
		w.addSearch(0.5, 0)
	}

	formed := w.run(1)
	require.Len(t, formed, 1)

	dc := w.dcByID[formed[0].DC]
	assert.Equal(t, 1, dc.busy[PlaylistTDM])

	dc.release(PlaylistTDM)
	assert.Equal(t, 0, dc.busy[PlaylistTDM])
	dc.release(PlaylistTDM)
	assert.Equal(t, 0, dc.busy[PlaylistTDM], "busy counter never goes negative")
}

func TestCandidateDistance(t *testing.T) {
	cfg := DefaultConfig()
	w := newMMWorld(cfg)

	a := w.addSearch(0.5, 0)
	b := w.addSearch(0.5, 0)
	c := w.addSearch(0.9, 0)

	dAB := candidateDistance(cfg, RegionNorthAmerica, w.players, a, b)
	dAC := candidateDistance(cfg, RegionNorthAmerica, w.players, a, c)
	assert.Less(t, dAB, dAC, "closer skill must score closer")

	// Symmetric in its arguments.
	assert.InDelta(t, dAC, candidateDistance(cfg, RegionNorthAmerica, w.players, c, a), 1e-12)
}

func TestCrossMismatchFractions(t *testing.T) {
	players := map[PlayerID]*Player{
		0: {ID: 0, Input: InputController, Platform: PlatformPC},
		1: {ID: 1, Input: InputMouseKeyboard, Platform: PlatformPC},
		2: {ID: 2, Input: InputController, Platform: PlatformXbox},
	}
	a := &SearchObject{ID: 0, Members: []PlayerID{0, 1}}
	b := &SearchObject{ID: 1, Members: []PlayerID{2}}

	inputFrac, platformFrac := crossMismatchFractions(players, a, b)
	assert.InDelta(t, 0.5, inputFrac, 1e-9)
	assert.InDelta(t, 1.0, platformFrac, 1e-9)
}
