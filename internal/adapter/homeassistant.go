package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
)

// SourceHomeAssistant tags presence events read from Home Assistant
const SourceHomeAssistant = "homeassistant"

// haState is the subset of a Home Assistant entity state we read
type haState struct {
	EntityID    string    `json:"entity_id"`
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
}

// HomeAssistant reads person entities from the Home Assistant REST API.
// People are matched through their ha_person_entity.
type HomeAssistant struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	last map[string]domain.TransitionKind // entity -> last reported kind
}

// NewHomeAssistant creates a presence source for baseURL authenticated with a
// long-lived access token
func NewHomeAssistant(baseURL, token string, timeout time.Duration, log zerolog.Logger) *HomeAssistant {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HomeAssistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "homeassistant").Logger(),
		now:     time.Now,
		last:    make(map[string]domain.TransitionKind),
	}
}

// Name returns the source identifier
func (h *HomeAssistant) Name() string {
	return SourceHomeAssistant
}

// Presence reports each mapped person's home flag. A state change since the
// previous call, or the first sighting of an entity, becomes a presence
// event stamped with the entity's last_changed time. Entities in the
// "unknown" or "unavailable" state are left out entirely.
func (h *HomeAssistant) Presence(ctx context.Context, people []loader.Person) (PresenceReport, error) {
	report := PresenceReport{Home: make(map[string]bool)}

	entityToPerson := make(map[string]string)
	for _, p := range people {
		if p.HAPersonEntity != "" {
			entityToPerson[p.HAPersonEntity] = p.Name
		}
	}
	if len(entityToPerson) == 0 {
		return report, nil
	}

	states, err := h.states(ctx)
	if err != nil {
		return report, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, st := range states {
		person, ok := entityToPerson[st.EntityID]
		if !ok {
			continue
		}

		state := strings.ToLower(st.State)
		if state == "unknown" || state == "unavailable" {
			h.log.Debug().Str("entity", st.EntityID).Str("state", state).Msg("Skipping indeterminate state")
			continue
		}

		kind := domain.TransitionAway
		if state == "home" {
			kind = domain.TransitionHome
		}
		report.Home[person] = kind == domain.TransitionHome

		if prev, seen := h.last[st.EntityID]; seen && prev == kind {
			continue
		}
		h.last[st.EntityID] = kind

		at := st.LastChanged
		if at.IsZero() {
			at = h.now()
		}
		report.Events = append(report.Events, domain.PresenceEvent{
			Person: person,
			At:     at.UTC(),
			Kind:   kind,
			Source: SourceHomeAssistant,
		})
		h.log.Debug().Str("person", person).Str("entity", st.EntityID).Str("state", state).
			Msg("Presence changed")
	}

	return report, nil
}

func (h *HomeAssistant) states(ctx context.Context) ([]haState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("states request returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var states []haState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}
	return states, nil
}
