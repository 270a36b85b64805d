package risk

import (
	"log"
	"sync"
)

// Clock supplies wall-clock milliseconds.
type Clock interface {
	NowMs() int64
}

// Level classifies a combined risk score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Strategy names, used as keys in [Result.Strategies].
const (
	StrategyVelocity    = "velocity"
	StrategyGeolocation = "geolocation"
	StrategyDevice      = "device"
	StrategyBehavioral  = "behavioral"
	StrategyIP          = "ip"
	StrategyTimeOfDay   = "time_of_day"
	StrategyAmount      = "transaction_amount"
)

// Config holds scorer tuning parameters. The caller validates it.
type Config struct {
	HighThreshold   int
	MediumThreshold int

	MaxLocations    int
	MaxTransactions int
	MaxSamples      int

	// EnableNightWindow turns on the absolute 2-5 AM check. It is off by
	// default: the check reads UTC hours without timezone context and
	// produces systematic false positives for non-UTC users.
	EnableNightWindow bool
}

// Input is one attempt to score. Only UserID is required.
type Input struct {
	UserID            string
	DeviceFingerprint string
	IPAddress         string
	Location          *Location // AtMs is ignored; the scorer stamps it
	TransactionAmount *float64
	Behavioral        *Sample
}

// Result is the combined scoring outcome.
type Result struct {
	Score      int
	Level      Level
	Legitimate bool
	Reasons    []string
	Strategies map[string]int
}

// Scorer runs the seven detection strategies over per-entity history. One
// coarse lock serializes Score calls; history is owned exclusively by the
// scorer and never mutated by the rate limiter.
type Scorer struct {
	mu        sync.Mutex
	clock     Clock
	cfg       Config
	history   *history
	blacklist *Blacklist
}

// NewScorer builds a scorer with empty history and blacklist.
func NewScorer(clock Clock, cfg Config) *Scorer {
	return &Scorer{
		clock: clock,
		cfg:   cfg,
		history: newHistory(historyCaps{
			locations:    cfg.MaxLocations,
			transactions: cfg.MaxTransactions,
			samples:      cfg.MaxSamples,
		}),
		blacklist: NewBlacklist(),
	}
}

// Blacklist exposes the scorer's fraud blacklist for the administrative
// report/clear surface.
func (s *Scorer) Blacklist() *Blacklist {
	return s.blacklist
}

// Score evaluates the attempt against history as it stood before this call,
// then folds the attempt into history for subsequent calls. It never fails:
// a strategy that cannot evaluate contributes zero.
func (s *Scorer) Score(in Input) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.clock.NowMs()

	res := Result{Strategies: make(map[string]int, 7)}

	s.run(&res, StrategyVelocity, func() (int, []string) { return s.velocity(in.UserID, nowMs) })
	s.run(&res, StrategyGeolocation, func() (int, []string) { return s.geolocation(in.UserID, in.Location, nowMs) })
	s.run(&res, StrategyDevice, func() (int, []string) { return s.device(in.UserID, in.DeviceFingerprint, nowMs) })
	s.run(&res, StrategyBehavioral, func() (int, []string) { return s.behavioral(in.UserID, in.Behavioral) })
	s.run(&res, StrategyIP, func() (int, []string) { return s.ipReputation(in.IPAddress, nowMs) })
	s.run(&res, StrategyTimeOfDay, func() (int, []string) { return s.timeOfDay(in.UserID, nowMs) })
	s.run(&res, StrategyAmount, func() (int, []string) { return s.amount(in.UserID, in.TransactionAmount, nowMs) })

	s.record(in, nowMs)

	if res.Score > 100 {
		res.Score = 100
	}
	switch {
	case res.Score >= s.cfg.HighThreshold:
		res.Level = LevelHigh
	case res.Score >= s.cfg.MediumThreshold:
		res.Level = LevelMedium
	default:
		res.Level = LevelLow
	}
	res.Legitimate = res.Level != LevelHigh

	return res
}

// run isolates one strategy: a panic is logged and scored as zero rather
// than aborting the whole pass.
func (s *Scorer) run(res *Result, name string, fn func() (int, []string)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("admission: risk strategy %s failed: %v", name, r)
			res.Strategies[name] = 0
		}
	}()

	score, reasons := fn()
	if score < 0 {
		score = 0
	}
	res.Strategies[name] = score
	res.Score += score
	res.Reasons = append(res.Reasons, reasons...)
}

// record folds the attempt into history after scoring. The attempt record
// itself is unconditional; optional signals are stored only when supplied.
func (s *Scorer) record(in Input, nowMs int64) {
	s.history.recordAttempt(userEntity(in.UserID), nowMs)

	if in.DeviceFingerprint != "" {
		s.history.recordAttempt(deviceEntity(in.DeviceFingerprint), nowMs)
		s.history.recordDevice(in.UserID, in.DeviceFingerprint)
	}
	if in.IPAddress != "" {
		s.history.recordAttempt(ipEntity(in.IPAddress), nowMs)
		s.history.recordIPUser(in.IPAddress, in.UserID)
	}
	if in.Location != nil && validCoordinates(in.Location.Lat, in.Location.Lon) {
		loc := *in.Location
		loc.AtMs = nowMs
		s.history.recordLocation(in.UserID, loc)
	}
	if in.Behavioral != nil {
		s.history.recordSample(in.UserID, *in.Behavioral)
	}
	if in.TransactionAmount != nil {
		s.history.recordTransaction(in.UserID, Transaction{Amount: *in.TransactionAmount, AtMs: nowMs})
	}
}

func userEntity(id string) string   { return "user:" + id }
func deviceEntity(fp string) string { return "device:" + fp }
func ipEntity(ip string) string     { return "ip:" + ip }
