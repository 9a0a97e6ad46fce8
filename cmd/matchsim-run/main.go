package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/argus-labs/matchsim/engine"
)

// runConfig is the driver's own environment-sourced configuration; engine
// parameters come from engine.Config.ApplyEnv on top of the defaults.
type runConfig struct {
	Seed       int64  `env:"MATCHSIM_SEED" envDefault:"3085"`
	Population int    `env:"MATCHSIM_POPULATION" envDefault:"5000"`
	Ticks      int    `env:"MATCHSIM_TICKS" envDefault:"500"`
	LogLevel   string `env:"MATCHSIM_LOG_LEVEL" envDefault:"info"`
}

func main() {
	var rc runConfig
	if err := env.Parse(&rc); err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to parse run config")
	}

	level, err := zerolog.ParseLevel(rc.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cfg := engine.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply engine config overrides")
	}

	eng, err := engine.New(cfg, rc.Seed, engine.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct engine")
	}
	if err := eng.GeneratePopulation(rc.Population); err != nil {
		logger.Fatal().Err(err).Msg("failed to generate population")
	}

	for i := 0; i < rc.Ticks; i++ {
		if _, err := eng.Tick(); err != nil {
			logger.Fatal().Err(err).Int("tick", i).Msg("tick failed")
		}
	}

	stats := eng.GetStats()
	logger.Info().
		Str("run_id", eng.RunID()).
		Int64("ticks", eng.CurrentTick()).
		Int64("matches_formed", stats.TotalMatchesFormed).
		Int64("matches_completed", stats.TotalMatchesCompleted).
		Int64("blowouts", stats.TotalBlowouts).
		Float64("wait_p50", stats.WaitTimeP50()).
		Float64("wait_p90", stats.WaitTimeP90()).
		Float64("wait_p99", stats.WaitTimeP99()).
		Float64("delta_ping_p50", stats.DeltaPingP50()).
		Float64("delta_ping_p90", stats.DeltaPingP90()).
		Float64("skill_disparity_mean", stats.SkillDisparityMean()).
		Msg("run complete")

	for _, bs := range eng.GetBucketStats() {
		logger.Info().
			Int("bucket", bs.Bucket).
			Int("players", bs.PlayerCount).
			Float64("avg_wait", bs.AvgWaitSeconds).
			Float64("avg_delta_ping", bs.AvgDeltaPing).
			Float64("win_rate", bs.WinRate).
			Msg("bucket summary")
	}
}
