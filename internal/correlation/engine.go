package correlation

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/domain"
)

// SourcePresenceFlag tags presence events the engine derives from flag changes
const SourcePresenceFlag = "presence-flag"

// Config holds the engine thresholds
type Config struct {
	// LearningThreshold is the minimum score (inclusive) to emit a suggestion
	LearningThreshold float64
	// HighConfidenceThreshold flags a suggestion as high confidence (inclusive)
	HighConfidenceThreshold float64
	// CorrelationWindow bounds how old a became-home event may be to count as "reported home"
	CorrelationWindow time.Duration
	// Cooldown before a ledgered pair may be suggested again; zero means never
	Cooldown time.Duration
	// DeriveTransitions records a presence event whenever a person's
	// reported-home flag differs from their last recorded transition
	DeriveTransitions bool
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		LearningThreshold:       0.6,
		HighConfidenceThreshold: 0.85,
		CorrelationWindow:       300 * time.Second,
		Cooldown:                0,
		DeriveTransitions:       true,
	}
}

// CycleInput is everything the engine needs for one learning cycle
type CycleInput struct {
	Now            time.Time
	Observations   []domain.Observation
	PresenceEvents []domain.PresenceEvent
	// ReportedHome is the presence feed's current flag per person
	ReportedHome map[string]bool
	Identities   []domain.PersonIdentity
}

// Rejection describes an input item dropped as malformed
type Rejection struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// CycleResult summarizes one learning cycle
type CycleResult struct {
	Suggestions    []domain.Suggestion `json:"suggestions"`
	Missing        []string            `json:"missing"`
	Ingested       int                 `json:"ingested"`
	Unknown        int                 `json:"unknown"`
	Rejected       []Rejection         `json:"rejected,omitempty"`
	Suppressed     int                 `json:"suppressed"`
	BelowThreshold int                 `json:"below_threshold"`
}

// Engine runs learning cycles against a State
type Engine struct {
	state *State
	cfg   Config
	log   zerolog.Logger
}

// NewEngine creates an engine. Zero-valued thresholds fall back to defaults.
func NewEngine(state *State, cfg Config, log zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.LearningThreshold <= 0 {
		cfg.LearningThreshold = def.LearningThreshold
	}
	if cfg.HighConfidenceThreshold <= 0 {
		cfg.HighConfidenceThreshold = def.HighConfidenceThreshold
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = def.CorrelationWindow
	}
	return &Engine{
		state: state,
		cfg:   cfg,
		log:   log.With().Str("component", "engine").Logger(),
	}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the state the engine mutates
func (e *Engine) State() *State {
	return e.state
}

// RunCycle executes ingest, discrepancy detection, scoring, suppression and
// emission. It never fails on data-shape problems: malformed items are
// rejected individually and reported in the result.
func (e *Engine) RunCycle(in CycleInput) CycleResult {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var result CycleResult

	observed := e.ingest(in.Observations, &result)
	e.recordPresence(in.PresenceEvents, &result)

	people, owner := indexIdentities(in.Identities)

	if e.cfg.DeriveTransitions {
		e.deriveTransitions(in.ReportedHome, now)
	}

	unknown := make([]string, 0, len(observed))
	for id := range observed {
		if _, known := owner[id]; !known {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	result.Unknown = len(unknown)

	for _, person := range sortedKeys(people) {
		ids := people[person]
		if !e.isMissing(person, ids, observed, in.ReportedHome[person], now) {
			continue
		}
		result.Missing = append(result.Missing, person)
		e.log.Debug().Str("person", person).Int("unknown", len(unknown)).
			Msg("Person reported home but no known device seen")

		references := e.state.Fingerprints.AllFor(ids)
		if len(references) == 0 {
			e.log.Debug().Str("person", person).Msg("No fingerprints for known devices, cannot score")
			continue
		}

		for _, id := range unknown {
			e.scoreCandidate(id, person, observed[id], references, now, &result)
		}
	}

	sort.SliceStable(result.Suggestions, func(i, j int) bool {
		a, b := result.Suggestions[i], result.Suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Person != b.Person {
			return a.Person < b.Person
		}
		return a.Identifier < b.Identifier
	})

	return result
}

// ingest validates observations and merges them into the fingerprint store.
// Returns the latest valid observation per normalized identifier.
func (e *Engine) ingest(observations []domain.Observation, result *CycleResult) map[string]domain.Observation {
	observed := make(map[string]domain.Observation, len(observations))

	for _, obs := range observations {
		obs.Identifier = domain.NormalizeMAC(obs.Identifier)
		if err := obs.Validate(); err != nil {
			e.reject(result, fmt.Sprintf("observation %q (ip %s)", obs.Identifier, obs.IP), err)
			continue
		}

		e.state.Fingerprints.Update(obs.Identifier, obs)
		result.Ingested++

		if prev, ok := observed[obs.Identifier]; !ok || !obs.ObservedAt.Before(prev.ObservedAt) {
			observed[obs.Identifier] = obs
		}
	}

	return observed
}

func (e *Engine) recordPresence(events []domain.PresenceEvent, result *CycleResult) {
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			e.reject(result, fmt.Sprintf("presence event for %q", ev.Person), err)
			continue
		}
		e.state.Presence.Record(ev.Person, ev)
	}
}

// deriveTransitions turns a change in a person's reported-home flag into a
// presence event, so feeds that only expose current state still build history.
func (e *Engine) deriveTransitions(reported map[string]bool, now time.Time) {
	for _, person := range sortedKeys(reported) {
		kind := domain.TransitionAway
		if reported[person] {
			kind = domain.TransitionHome
		}

		last, ok := e.state.Presence.Last(person)
		if (ok && last.Kind == kind) || (!ok && kind == domain.TransitionAway) {
			continue
		}

		e.state.Presence.Record(person, domain.PresenceEvent{
			Person: person,
			At:     now,
			Kind:   kind,
			Source: SourcePresenceFlag,
		})
		e.log.Debug().Str("person", person).Str("kind", string(kind)).Msg("Recorded presence transition from flag")
	}
}

// isMissing is true when the person is reported home but none of their
// known identifiers was observed this cycle.
func (e *Engine) isMissing(person string, ids []string, observed map[string]domain.Observation, flag bool, now time.Time) bool {
	for _, id := range ids {
		if _, ok := observed[id]; ok {
			return false
		}
	}
	if flag {
		return true
	}
	_, recent := e.state.Presence.RecentTransitionToHome(person, now, e.cfg.CorrelationWindow)
	return recent
}

func (e *Engine) scoreCandidate(id, person string, obs domain.Observation, references map[string]domain.Fingerprint, now time.Time, result *CycleResult) {
	candidate, ok := e.state.Fingerprints.Get(id)
	if !ok {
		return
	}

	score, evidence, matched := BestScore(candidate, references)
	if score < e.cfg.LearningThreshold {
		result.BelowThreshold++
		return
	}

	if e.state.Ledger.Suppressed(id, person, now, e.cfg.Cooldown) {
		result.Suppressed++
		e.log.Debug().Str("identifier", id).Str("person", person).Float64("score", score).
			Msg("Suggestion already made, suppressing")
		return
	}

	hostname := obs.Hostname
	if hostname == "" && len(candidate.Hostnames) > 0 {
		hostname = candidate.Hostnames[0]
	}

	suggestion := domain.Suggestion{
		Identifier:     id,
		Person:         person,
		Score:          score,
		HighConfidence: score >= e.cfg.HighConfidenceThreshold,
		Evidence:       evidence,
		MatchedAgainst: matched,
		IP:             obs.IP,
		Hostname:       hostname,
		GeneratedAt:    now,
	}

	e.state.Ledger.Record(id, person, now)
	result.Suggestions = append(result.Suggestions, suggestion)

	e.log.Info().
		Str("identifier", id).
		Str("person", person).
		Float64("score", score).
		Bool("high_confidence", suggestion.HighConfidence).
		Str("matched_against", matched).
		Msg("New device mapping suggested")
}

func (e *Engine) reject(result *CycleResult, item string, err error) {
	result.Rejected = append(result.Rejected, Rejection{Item: item, Reason: err.Error()})
	e.log.Warn().Err(err).Str("item", item).Msg("Rejected malformed input")
}

// indexIdentities returns person -> normalized identifiers and identifier -> owner.
// When an identifier is listed under several people the first one wins for
// ownership, but it still counts as a known device for each of them.
func indexIdentities(identities []domain.PersonIdentity) (map[string][]string, map[string]string) {
	people := make(map[string][]string, len(identities))
	owner := make(map[string]string)

	for _, ident := range identities {
		if ident.Name == "" {
			continue
		}
		ids := people[ident.Name]
		for _, raw := range ident.Identifiers {
			id := domain.NormalizeMAC(raw)
			if id == "" {
				continue
			}
			ids = append(ids, id)
			if _, taken := owner[id]; !taken {
				owner[id] = ident.Name
			}
		}
		people[ident.Name] = ids
	}

	return people, owner
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
