package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/argus-labs/matchsim/internal/assert"
)

// Engine is the top-level simulation driver: it owns the population, the
// live search queues, in-progress matches, and the RNG stream, and
// advances them one fixed five-phase tick at a time. All iteration that
// feeds the RNG happens in ID order so a run is bit-identical for a
// given (config, seed, population size).
type Engine struct {
	cfg Config
	log zerolog.Logger

	runID string
	tick  int64
	rng   *rng

	players map[PlayerID]*Player
	parties map[PartyID]*Party
	dcs     []*DataCenter
	dcByID  map[DataCenterID]*DataCenter

	queue map[Playlist][]*SearchObject

	matches    map[MatchID]*Match
	nextSearch SearchID
	nextMatch  MatchID

	// skillMatchCounter counts completed matches since the last global
	// percentile recompute when skill evolution is on.
	skillMatchCounter int

	stats *Stats
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a zerolog.Logger; the default logger is disabled, so
// the engine stays silent unless a host wires one in.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine with a fresh, unpopulated world. Call
// GeneratePopulation to seed players before ticking.
func New(cfg Config, seed int64, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrapConfig(err)
	}

	dcs := defaultDataCenters()
	dcByID := make(map[DataCenterID]*DataCenter, len(dcs))
	for _, dc := range dcs {
		dcByID[dc.ID] = dc
	}

	queue := make(map[Playlist][]*SearchObject, numPlaylists)
	for _, pl := range AllPlaylists() {
		queue[pl] = nil
	}

	e := &Engine{
		cfg:     cfg,
		log:     newDefaultLogger(),
		runID:   uuid.NewString(),
		rng:     newRNG(seed),
		players: make(map[PlayerID]*Player),
		parties: make(map[PartyID]*Party),
		dcs:     dcs,
		dcByID:  dcByID,
		queue:   queue,
		matches: make(map[MatchID]*Match),
		stats:   newStats(cfg.NumSkillBuckets),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.log.Info().Str("run_id", e.runID).Msg("engine constructed")
	return e, nil
}

// RunID returns this engine's run identifier, minted once at construction.
// It is a tracing label only; entity identities stay dense integers.
func (e *Engine) RunID() string { return e.runID }

// CurrentTick returns the current tick index (0 before the first Tick call).
func (e *Engine) CurrentTick() int64 { return e.tick }

// GeneratePopulation seeds the engine's world with n players. Idempotent
// per engine instance: once a population exists, further calls are no-ops
// so the RNG stream is not perturbed.
func (e *Engine) GeneratePopulation(n int) error {
	if n <= 0 {
		return ErrEmptyPopulation
	}
	if len(e.players) > 0 {
		return nil
	}
	players, parties := GeneratePopulation(n, e.dcs, e.cfg, e.rng)
	e.players = make(map[PlayerID]*Player, len(players))
	for _, p := range players {
		e.players[p.ID] = p
	}
	e.parties = parties
	e.log.Info().Int("players", n).Int("parties", len(parties)).Msg("population generated")
	return nil
}

// playersInOrder returns every player ordered by ID. Player IDs are dense
// integers starting at zero, so this is a direct index walk.
func (e *Engine) playersInOrder() []*Player {
	out := make([]*Player, 0, len(e.players))
	for i := 0; i < len(e.players); i++ {
		if p, ok := e.players[PlayerID(i)]; ok {
			out = append(out, p)
		}
	}
	if len(out) != len(e.players) {
		// Non-dense table (never produced by GeneratePopulation); fall back
		// to an explicit sort so ordering stays total.
		out = out[:0]
		for _, p := range e.players {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out
}

// Tick runs exactly one fixed five-phase tick: Arrivals, Search Starts,
// Matchmaking, Match Completions, Statistics. It rejects a world without a
// generated population; every other degenerate configuration degrades to
// "no matches form" rather than an error. The returned Stats is a deep
// snapshot of this tick, safe to hold across later ticks.
func (e *Engine) Tick() (*Stats, error) {
	if len(e.players) == 0 {
		return nil, ErrPopulationNotGenerated
	}

	e.tick++
	e.stats.beginTick(e.tick)

	e.phaseArrivals()
	e.phaseSearchStarts()
	formed := e.phaseMatchmaking()
	e.phaseMatchCompletions()
	e.phaseStatistics(formed)

	e.log.Debug().
		Int64("tick", e.tick).
		Int("formed", e.stats.MatchesFormedThisTick).
		Int("completed", e.stats.MatchesCompletedThisTick).
		Int("searching", e.stats.Searching).
		Int("in_match", e.stats.InMatch).
		Msg("tick advanced")

	return e.stats.snapshot(), nil
}

// phaseArrivals brings a Poisson-distributed number of offline players
// online into StateInLobby. A negative ArrivalRate auto-scales to 0.2% of
// the population per tick; an explicit zero disables arrivals entirely.
func (e *Engine) phaseArrivals() {
	rate := e.cfg.ArrivalRate
	if rate < 0 {
		rate = float64(len(e.players)) * 0.002
	}
	if rate == 0 {
		return
	}
	n := e.rng.poisson(rate)
	if n == 0 {
		return
	}

	var offline []*Player
	for _, p := range e.playersInOrder() {
		if p.State == StateOffline {
			offline = append(offline, p)
		}
	}
	if len(offline) == 0 {
		return
	}
	idx := e.rng.shuffledIndices(len(offline))
	for i := 0; i < n && i < len(idx); i++ {
		offline[idx[i]].State = StateInLobby
	}
}

// searchStartProb is the per-tick chance a lobbied player (or full party)
// begins searching.
const searchStartProb = 0.3

// phaseSearchStarts moves a fraction of lobbied players into search,
// creating one SearchObject per solo player or per whole party. Parties
// queue atomically: the draw happens once per party, and only when every
// member is in the lobby.
func (e *Engine) phaseSearchStarts() {
	seen := make(map[PlayerID]bool)

	partyIDs := make([]PartyID, 0, len(e.parties))
	for id := range e.parties {
		partyIDs = append(partyIDs, id)
	}
	sort.Slice(partyIDs, func(i, j int) bool { return partyIDs[i] < partyIDs[j] })

	for _, id := range partyIDs {
		party := e.parties[id]
		if party.Size() == 0 {
			continue
		}
		leader, ok := e.players[party.LeaderID]
		if !ok || leader.State != StateInLobby {
			continue
		}
		allReady := true
		for _, pid := range party.Members {
			p, ok := e.players[pid]
			if !ok || p.State != StateInLobby {
				allReady = false
				break
			}
		}
		if !allReady || !e.rng.bernoulli(searchStartProb) {
			for _, pid := range party.Members {
				seen[pid] = true
			}
			continue
		}
		e.startSearch(party.Members, &party.ID)
		for _, pid := range party.Members {
			seen[pid] = true
		}
	}

	for _, p := range e.playersInOrder() {
		if seen[p.ID] || p.State != StateInLobby {
			continue
		}
		if p.PartyID != nil {
			continue
		}
		if e.rng.bernoulli(searchStartProb) {
			e.startSearch([]PlayerID{p.ID}, nil)
		}
	}
}

func (e *Engine) startSearch(members []PlayerID, partyID *PartyID) {
	var sumPerc float64
	var sumLat, sumLon float64
	accepted := make(map[Playlist]bool, numPlaylists)
	for i, pid := range members {
		p, ok := e.players[pid]
		if !ok {
			continue
		}
		sumPerc += p.Percentile
		sumLat += p.Location.Lat
		sumLon += p.Location.Lon
		if i == 0 {
			for pl, v := range p.PreferredPlaylists {
				if v {
					accepted[pl] = true
				}
			}
		} else {
			for pl := range accepted {
				if !p.PreferredPlaylists[pl] {
					delete(accepted, pl)
				}
			}
		}
		p.State = StateSearching
		tick := e.tick
		p.SearchStartAt = &tick
	}
	if len(accepted) == 0 {
		// A party with a disjoint preference intersection still queues;
		// default it into the baseline playlist.
		accepted[PlaylistTDM] = true
	}

	n := float64(len(members))
	s := &SearchObject{
		ID:                e.nextSearch,
		PartyID:           partyID,
		Members:           append([]PlayerID(nil), members...),
		AvgPercentile:     sumPerc / n,
		AvgLocation:       location{Lat: sumLat / n, Lon: sumLon / n},
		AcceptedPlaylists: accepted,
		StartTick:         e.tick,
	}
	e.nextSearch++

	for _, pl := range AllPlaylists() {
		if accepted[pl] {
			e.queue[pl] = append(e.queue[pl], s)
		}
	}
}

func (e *Engine) phaseMatchmaking() []*Match {
	formed := runMatchmaking(e.queue, e.players, e.dcs, e.dcByID, e.cfg, e.tick, e.rng, &e.nextMatch)
	for _, m := range formed {
		e.matches[m.ID] = m
		e.stats.recordWaitSample(m.AvgWaitSeconds)
		e.stats.recordMatchSamples(m.AvgDeltaPing, m.SkillDisparity, m.Quality)
		e.log.Debug().
			Int64("match", int64(m.ID)).
			Str("playlist", m.Playlist.String()).
			Int("players", m.TotalPlayers()).
			Float64("skill_disparity", m.SkillDisparity).
			Float64("avg_delta_ping", m.AvgDeltaPing).
			Msg("match formed")
	}
	e.stats.MatchesFormedThisTick = len(formed)
	e.stats.TotalMatchesFormed += int64(len(formed))
	return formed
}

func (e *Engine) phaseMatchCompletions() {
	var due []MatchID
	for id, m := range e.matches {
		if e.tick-m.StartTick >= m.DurationTicks {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	completedMatches := 0
	for _, id := range due {
		m := e.matches[id]
		result := resolveMatch(m, e.players, e.cfg, e.rng)
		dc := e.dcByID[m.DC]
		e.stats.recordBlowout(result.IsBlowout, result.BlowoutSeverity)

		allPlayers := m.AllPlayers()
		lobbyAvgPerf := 0.0
		if len(allPlayers) > 0 {
			var sum float64
			for _, pid := range allPlayers {
				sum += result.Performance[pid]
			}
			lobbyAvgPerf = sum / float64(len(allPlayers))
		}

		for _, pid := range allPlayers {
			p, ok := e.players[pid]
			if !ok {
				continue
			}
			assert.That(p.State == StateInMatch, "player %d completing match %d is in state %d", pid, id, p.State)
			wantsMore := applyRetention(p, result, e.cfg, e.rng)
			perf := result.Performance[pid]
			maybeEvolveSkill(p, perf, lobbyAvgPerf, e.cfg)

			p.CurrentMatch = nil
			if wantsMore {
				p.State = StateInLobby
			} else {
				p.State = StateOffline
			}
		}
		if dc != nil {
			dc.release(m.Playlist)
		}
		delete(e.matches, id)
		completedMatches++
	}

	e.stats.MatchesCompletedThisTick = completedMatches
	e.stats.TotalMatchesCompleted += int64(completedMatches)

	if e.cfg.EnableSkillEvolution && completedMatches > 0 {
		e.skillMatchCounter += completedMatches
		if e.skillMatchCounter >= e.cfg.SkillUpdateBatchSize {
			e.skillMatchCounter = 0
			recomputePercentiles(e.playersInOrder(), e.cfg.NumSkillBuckets)
		}
	}
}

func (e *Engine) phaseStatistics(formed []*Match) {
	offline, inLobby, searching, inMatch := 0, 0, 0, 0
	for _, p := range e.players {
		switch p.State {
		case StateOffline:
			offline++
		case StateInLobby:
			inLobby++
		case StateSearching:
			searching++
		case StateInMatch:
			inMatch++
		}
	}
	assert.That(offline+inLobby+searching+inMatch == len(e.players),
		"state counts %d+%d+%d+%d disagree with population %d",
		offline, inLobby, searching, inMatch, len(e.players))
	e.stats.Offline = offline
	e.stats.InLobby = inLobby
	e.stats.Searching = searching
	e.stats.InMatch = inMatch

	e.stats.recomputeHistogramAndBuckets(e.playersInOrder(), formed)
	timeSeconds := float64(e.tick) * e.cfg.TickIntervalSeconds
	e.stats.commitTickSnapshot(timeSeconds, len(e.matches))
}

// GetStats returns a deep snapshot of the current statistics. Each call
// yields an independent copy: holding one across ticks preserves its
// values, and mutating it cannot reach engine state.
func (e *Engine) GetStats() *Stats { return e.stats.snapshot() }

// GetBucketStats returns one row per skill bucket, ordered by bucket ID.
func (e *Engine) GetBucketStats() []BucketStats { return e.stats.SortedBucketStats() }

// GetSkillDistribution returns a 20-bin histogram of raw skill over [-1, 1]
// across the live population.
func (e *Engine) GetSkillDistribution() []HistBin {
	const bins = 20
	xs := make([]float64, 0, len(e.players))
	for _, p := range e.players {
		xs = append(xs, p.Skill)
	}
	return histogram(xs, bins, -1, 1)
}

// GetSearchTimeHistogram returns a histogram of the rolling search-time
// buffer.
func (e *Engine) GetSearchTimeHistogram() []HistBin { return e.stats.SearchTimeHistogram(20) }

// GetDeltaPingHistogram returns a histogram of the rolling delta-ping
// buffer.
func (e *Engine) GetDeltaPingHistogram() []HistBin { return e.stats.DeltaPingHistogram(20) }

// GetTimeSeries returns the retained per-tick snapshots, oldest first.
func (e *Engine) GetTimeSeries() []TickSnapshot { return e.stats.TimeSeries() }

// GetPlayer returns a copy of the player record for id, or
// ErrUnknownPlayer. The copy is detached: writes to it never reach the
// engine's own table.
func (e *Engine) GetPlayer(id PlayerID) (*Player, error) {
	p, ok := e.players[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return p.clone(), nil
}

// PlayerCount returns the current population size.
func (e *Engine) PlayerCount() int { return len(e.players) }
