// Package progression owns experience accumulation, level resolution, stat
// growth and job-class assignment for a user profile.
package progression

import (
	"errors"
	"math"

	"github.com/kasuganosora/solotracker/model"
)

const (
	xpPerLevel    = 1000
	statsPerLevel = 2
	baseStat      = 10

	// MaxCredit caps a single credit.
	MaxCredit int64 = 1_000_000_000
)

var (
	ErrInvalidAmount   = errors.New("progression: xp amount must not be negative")
	ErrProfileNotFound = errors.New("progression: profile not found")
	ErrConflict        = errors.New("progression: profile was modified concurrently")
	ErrAmountTooLarge  = errors.New("progression: xp amount is too large")
)

// JobClass is the display tier derived from a level.
type JobClass struct {
	Class string `json:"class"`
	Title string `json:"title"`
}

// jobTable is ordered from the highest threshold down.
var jobTable = []struct {
	minLevel int
	job      JobClass
}{
	{100, JobClass{"Shadow Monarch", "The One Who Overcame Adversity"}},
	{80, JobClass{"Necromancer", "Master of Death"}},
	{60, JobClass{"Shadow Hunter", "Elite Hunter"}},
	{40, JobClass{"A-Rank Hunter", "Advanced Hunter"}},
	{20, JobClass{"B-Rank Hunter", "Skilled Hunter"}},
	{10, JobClass{"C-Rank Hunter", "Intermediate Hunter"}},
}

var noviceJob = JobClass{"E-Rank Hunter", "Novice Hunter"}

// JobFor returns the job class for level.
func JobFor(level int) JobClass {
	for _, e := range jobTable {
		if level >= e.minLevel {
			return e.job
		}
	}
	return noviceJob
}

// Threshold is the XP needed to leave level.
func Threshold(level int) int64 {
	return int64(level) * xpPerLevel
}

// Result describes the outcome of one credit.
type Result struct {
	XPGained    int64
	LevelUp     bool
	OldLevel    int
	NewLevel    int
	StatsGained int
	OldJob      JobClass
	NewJob      JobClass
	JobChanged  bool
}

// LevelsGained is NewLevel - OldLevel.
func (r Result) LevelsGained() int { return r.NewLevel - r.OldLevel }

// NewProfile returns a level 1 profile for userID. day is the
// model.DayLayout date activity is counted from.
func NewProfile(userID int64, day string) *model.UserProfile {
	job := JobFor(1)
	return &model.UserProfile{
		UserID:       userID,
		Level:        1,
		LastActivity: day,
		Strength:     baseStat,
		Vitality:     baseStat,
		Agility:      baseStat,
		Intelligence: baseStat,
		Perception:   baseStat,
		JobClass:     job.Class,
		JobTitle:     job.Title,
	}
}

// Apply credits amount XP to p in memory. Each level's threshold is taken
// from the level at the time of the check, so one large credit can cross
// several levels.
func Apply(p *model.UserProfile, amount int64) (Result, error) {
	if amount < 0 {
		return Result{}, ErrInvalidAmount
	}
	if amount > MaxCredit || p.TotalXP > math.MaxInt64-amount || p.CurrentXP > math.MaxInt64-amount {
		return Result{}, ErrAmountTooLarge
	}
	if p.Level < 1 {
		p.Level = 1
	}
	res := Result{
		XPGained: amount,
		OldLevel: p.Level,
		OldJob:   JobClass{Class: p.JobClass, Title: p.JobTitle},
	}

	p.CurrentXP += amount
	p.TotalXP += amount
	for p.CurrentXP >= Threshold(p.Level) {
		p.CurrentXP -= Threshold(p.Level)
		p.Level++
		p.Strength += statsPerLevel
		p.Vitality += statsPerLevel
		p.Agility += statsPerLevel
		p.Intelligence += statsPerLevel
		p.Perception += statsPerLevel
	}

	res.NewLevel = p.Level
	res.LevelUp = res.NewLevel > res.OldLevel
	res.StatsGained = res.LevelsGained() * statsPerLevel

	job := JobFor(p.Level)
	p.JobClass, p.JobTitle = job.Class, job.Title
	res.NewJob = job
	res.JobChanged = job.Class != res.OldJob.Class
	return res, nil
}

// XPToNextLevel is the XP still missing before p levels up.
func XPToNextLevel(p *model.UserProfile) int64 {
	return Threshold(p.Level) - p.CurrentXP
}

// XPPercentage is the progress through the current level, 0..100.
func XPPercentage(p *model.UserProfile) float64 {
	t := Threshold(p.Level)
	if t <= 0 {
		return 0
	}
	return float64(p.CurrentXP) / float64(t) * 100
}
