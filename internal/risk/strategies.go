package risk

import (
	"fmt"
	"math"
	"net/netip"
	"time"
)

const (
	minuteMs = int64(time.Minute / time.Millisecond)
	hourMs   = int64(time.Hour / time.Millisecond)
	dayMs    = 24 * hourMs
)

// velocity scores raw attempt frequency for the user across three trailing
// windows. All three checks can fire on the same attempt.
func (s *Scorer) velocity(userID string, nowMs int64) (int, []string) {
	entity := userEntity(userID)
	score := 0
	var reasons []string

	if n := s.history.attemptsWithin(entity, minuteMs, nowMs); n > 5 {
		score += 30
		reasons = append(reasons, fmt.Sprintf("high velocity: %d attempts in the last minute", n))
	}
	if n := s.history.attemptsWithin(entity, hourMs, nowMs); n > 20 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("high velocity: %d attempts in the last hour", n))
	}
	if n := s.history.attemptsWithin(entity, dayMs, nowMs); n > 50 {
		score += 15
		reasons = append(reasons, fmt.Sprintf("high velocity: %d attempts in the last day", n))
	}

	return score, reasons
}

// geolocation scores travel speed between the previous fix and the current
// one. The current location is folded into history by the caller regardless
// of the outcome here.
func (s *Scorer) geolocation(userID string, loc *Location, nowMs int64) (int, []string) {
	if loc == nil || !validCoordinates(loc.Lat, loc.Lon) {
		return 0, nil
	}
	last, ok := s.history.lastLocation(userID)
	if !ok {
		return 0, nil
	}

	distanceKm := haversineKm(last.Lat, last.Lon, loc.Lat, loc.Lon)
	elapsedMs := nowMs - last.AtMs
	if elapsedMs < 1 {
		elapsedMs = 1
	}
	speedKmh := distanceKm / (float64(elapsedMs) / float64(hourMs))

	score := 0
	var reasons []string
	if speedKmh > 1000 {
		score += 50
		reasons = append(reasons, fmt.Sprintf("impossible travel: %.0f km in %.1f minutes", distanceKm, float64(elapsedMs)/float64(minuteMs)))
	} else if speedKmh > 500 {
		score += 25
		reasons = append(reasons, fmt.Sprintf("improbable travel speed: %.0f km/h", speedKmh))
	}

	if last.Country != "" && loc.Country != "" && last.Country != loc.Country && elapsedMs <= 4*hourMs {
		score += 15
		reasons = append(reasons, fmt.Sprintf("country changed from %s to %s within 4 hours", last.Country, loc.Country))
	}

	return score, reasons
}

// device scores fingerprint reputation. A blacklisted fingerprint
// short-circuits to the maximum score.
func (s *Scorer) device(userID, fingerprint string, nowMs int64) (int, []string) {
	if fingerprint == "" {
		return 0, nil
	}
	if entry, ok := s.blacklist.Get(deviceEntity(fingerprint)); ok {
		return 100, []string{"device fingerprint is blacklisted: " + entry.Reason}
	}

	score := 0
	var reasons []string

	if known, seen := s.history.knownDevice(userID, fingerprint); known > 0 && !seen {
		score += 15
		reasons = append(reasons, "unrecognized device fingerprint for this user")
	}
	if n := s.history.attemptsWithin(deviceEntity(fingerprint), hourMs, nowMs); n > 20 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("device made %d attempts in the last hour", n))
	}
	if n := s.history.deviceUserCount(fingerprint); n > 5 {
		score += 15
		reasons = append(reasons, fmt.Sprintf("fingerprint shared across %d users", n))
	}

	return score, reasons
}

// behavioral scores factor-completion timing against absolute bounds and,
// once enough samples exist, against the user's own historical average.
func (s *Scorer) behavioral(userID string, sample *Sample) (int, []string) {
	if sample == nil {
		return 0, nil
	}

	score := 0
	var reasons []string

	if sample.CompletionMs > 0 && sample.CompletionMs < 500 {
		score += 30
		reasons = append(reasons, fmt.Sprintf("factor completed in %.0fms, faster than human baseline", sample.CompletionMs))
	} else if sample.CompletionMs > 300_000 {
		score += 10
		reasons = append(reasons, "factor entry stalled for over five minutes")
	}

	// 200ms/char is the human typing baseline; a quarter of it is paste-like.
	if sample.MsPerChar > 0 && sample.MsPerChar < 200.0/4 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("typing pace %.0fms/char, implausibly fast", sample.MsPerChar))
	}

	prior := s.history.userSamples(userID)
	if len(prior) >= 5 {
		var sum float64
		for _, p := range prior {
			sum += p.CompletionMs
		}
		avg := sum / float64(len(prior))
		if avg > 0 {
			deviation := math.Abs(sample.CompletionMs-avg) / avg
			if deviation > 0.7 {
				score += 25
				reasons = append(reasons, fmt.Sprintf("timing deviates %.0f%% from user baseline", deviation*100))
			} else if deviation > 0.5 {
				score += 10
				reasons = append(reasons, fmt.Sprintf("timing deviates %.0f%% from user baseline", deviation*100))
			}
		}
	}

	return score, reasons
}

// ipReputation scores the source address. A blacklisted IP short-circuits to
// the maximum score.
func (s *Scorer) ipReputation(ip string, nowMs int64) (int, []string) {
	if ip == "" {
		return 0, nil
	}
	if entry, ok := s.blacklist.Get(ipEntity(ip)); ok {
		return 100, []string{"ip address is blacklisted: " + entry.Reason}
	}

	score := 0
	var reasons []string

	if n := s.history.attemptsWithin(ipEntity(ip), hourMs, nowMs); n > 20 {
		score += 25
		reasons = append(reasons, fmt.Sprintf("%d attempts from this address in the last hour", n))
	}
	if n := s.history.ipUserCount(ip); n > 10 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("address shared across %d users", n))
	}
	if isReservedAddress(ip) {
		score += 10
		reasons = append(reasons, "address in a private or reserved range")
	}

	return score, reasons
}

// isReservedAddress is a cheap stand-in for proxy detection.
func isReservedAddress(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

// timeOfDay compares the attempt hour against the user's historical average
// hour once at least ten attempts are on record.
//
// The absolute night-window check is timezone-naive and stays disabled unless
// explicitly enabled; the historical variant is a known limitation for
// travelling users rather than something this scorer tries to correct.
func (s *Scorer) timeOfDay(userID string, nowMs int64) (int, []string) {
	hour := time.UnixMilli(nowMs).UTC().Hour()

	score := 0
	var reasons []string

	if s.cfg.EnableNightWindow && hour >= 2 && hour < 5 {
		score += 15
		reasons = append(reasons, fmt.Sprintf("attempt at %02d:00 UTC, inside the night window", hour))
	}

	stamps := s.history.attemptTimes(userEntity(userID))
	if len(stamps) >= 10 {
		var sum float64
		for _, ts := range stamps {
			sum += float64(time.UnixMilli(ts).UTC().Hour())
		}
		avg := sum / float64(len(stamps))
		if math.Abs(float64(hour)-avg) > 8 {
			score += 10
			reasons = append(reasons, fmt.Sprintf("attempt at %02d:00 deviates from the user's usual hour", hour))
		}
	}

	return score, reasons
}

// amount scores the transaction against the user's trailing-30-day history.
// The current transaction is folded into history by the caller regardless.
func (s *Scorer) amount(userID string, amount *float64, nowMs int64) (int, []string) {
	if amount == nil || *amount <= 0 {
		return 0, nil
	}

	var trailing []Transaction
	for _, tx := range s.history.userTransactions(userID) {
		if nowMs-tx.AtMs <= 30*dayMs {
			trailing = append(trailing, tx)
		}
	}
	if len(trailing) == 0 {
		return 0, nil
	}

	var sum float64
	for _, tx := range trailing {
		sum += tx.Amount
	}
	avg := sum / float64(len(trailing))
	if avg <= 0 {
		return 0, nil
	}

	score := 0
	var reasons []string

	if *amount > 10*avg {
		score += 30
		reasons = append(reasons, fmt.Sprintf("amount %.2f exceeds 10x the user average %.2f", *amount, avg))
	} else if *amount > 5*avg {
		score += 15
		reasons = append(reasons, fmt.Sprintf("amount %.2f exceeds 5x the user average %.2f", *amount, avg))
	}

	recentLarge := 0
	for _, tx := range trailing {
		if nowMs-tx.AtMs <= hourMs && tx.Amount > 2*avg {
			recentLarge++
		}
	}
	if recentLarge >= 3 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("%d oversized transactions in the last hour", recentLarge))
	}

	return score, reasons
}
