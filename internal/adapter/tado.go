package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
)

// SourceTado tags presence events read from Tado geofencing
const SourceTado = "tado"

// Tado endpoints and the public web app client
const (
	DefaultTadoBaseURL  = "https://my.tado.com/api/v2"
	DefaultTadoAuthURL  = "https://auth.tado.com/oauth/token"
	DefaultTadoClientID = "tado-web-app"
)

// TadoConfig holds the account and endpoints for the Tado presence source
type TadoConfig struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenFile    string // empty = tokens are kept in memory only
	Timeout      time.Duration
}

type tadoHome struct {
	ID int64 `json:"id"`
}

type tadoMe struct {
	Homes []tadoHome `json:"homes"`
}

type tadoMobileDevice struct {
	Name     string `json:"name"`
	Settings struct {
		GeoTrackingEnabled bool `json:"geoTrackingEnabled"`
	} `json:"settings"`
	Location *struct {
		AtHome bool `json:"atHome"`
	} `json:"location"`
}

// Tado reads the geofencing state of the mobile devices registered with a
// Tado home. People are matched through their tado_name, case-insensitively.
type Tado struct {
	cfg    TadoConfig
	oauth  oauth2.Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	tokens    oauth2.TokenSource
	cacheRead bool
	homeID    int64
	last      map[string]domain.TransitionKind // device name -> last reported kind
}

// NewTado creates a Tado presence source. Tokens cached in cfg.TokenFile are
// reused; otherwise the first call authenticates with the password grant.
func NewTado(cfg TadoConfig, log zerolog.Logger) *Tado {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTadoBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultTadoAuthURL
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultTadoClientID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Tado{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.AuthURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: []string{"home.user"},
		},
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "tado").Logger(),
		now:    time.Now,
		last:   make(map[string]domain.TransitionKind),
	}
}

// Name returns the source identifier
func (t *Tado) Name() string {
	return SourceTado
}

// Presence reports the home flag of each person whose tado_name matches a
// device with geofencing enabled. A change since the previous call, or the
// first sighting of a device, becomes a presence event stamped with the
// poll time since Tado does not report when the device crossed the fence.
func (t *Tado) Presence(ctx context.Context, people []loader.Person) (PresenceReport, error) {
	report := PresenceReport{Home: make(map[string]bool)}

	nameToPerson := make(map[string]string)
	for _, p := range people {
		if p.TadoName != "" {
			nameToPerson[strings.ToLower(p.TadoName)] = p.Name
		}
	}
	if len(nameToPerson) == 0 {
		return report, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	devices, err := t.mobileDevices(ctx)
	if err != nil {
		return report, err
	}

	now := t.now().UTC()
	for _, d := range devices {
		person, ok := nameToPerson[strings.ToLower(d.Name)]
		if !ok {
			continue
		}
		if !d.Settings.GeoTrackingEnabled || d.Location == nil {
			t.log.Debug().Str("device", d.Name).Msg("Skipping device without geofencing")
			continue
		}

		kind := domain.TransitionAway
		if d.Location.AtHome {
			kind = domain.TransitionHome
		}
		report.Home[person] = report.Home[person] || kind == domain.TransitionHome

		key := strings.ToLower(d.Name)
		if prev, seen := t.last[key]; seen && prev == kind {
			continue
		}
		t.last[key] = kind

		report.Events = append(report.Events, domain.PresenceEvent{
			Person: person,
			At:     now,
			Kind:   kind,
			Source: SourceTado,
		})
		t.log.Debug().Str("person", person).Str("device", d.Name).Bool("at_home", d.Location.AtHome).
			Msg("Presence changed")
	}

	return report, nil
}

func (t *Tado) mobileDevices(ctx context.Context) ([]tadoMobileDevice, error) {
	if t.homeID == 0 {
		var me tadoMe
		if err := t.get(ctx, "/me", &me); err != nil {
			return nil, err
		}
		if len(me.Homes) == 0 {
			return nil, errors.New("account has no homes")
		}
		t.homeID = me.Homes[0].ID
		t.log.Info().Int64("home_id", t.homeID).Msg("Discovered Tado home")
	}

	var devices []tadoMobileDevice
	if err := t.get(ctx, fmt.Sprintf("/homes/%d/mobileDevices", t.homeID), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (t *Tado) get(ctx context.Context, path string, out any) error {
	tok, err := t.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Revoked tokens only show up here; sign in again next cycle
		t.tokens = nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// token returns a valid access token. A cached token is tried first and
// refreshed when expired; a failed refresh falls back to the password grant.
// Callers hold t.mu.
func (t *Tado) token(ctx context.Context) (*oauth2.Token, error) {
	if t.tokens == nil && !t.cacheRead {
		t.cacheRead = true
		cached, err := t.loadToken()
		if err != nil {
			t.log.Warn().Err(err).Str("path", t.cfg.TokenFile).Msg("Ignoring cached Tado token")
		}
		if cached != nil {
			t.tokens = t.tokenSource(cached)
		}
	}

	if t.tokens != nil {
		tok, err := t.tokens.Token()
		if err == nil {
			t.saveToken(tok)
			return tok, nil
		}
		t.log.Warn().Err(err).Msg("Tado token refresh failed, signing in again")
		t.tokens = nil
	}

	tok, err := t.oauth.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, t.client), t.cfg.Username, t.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	t.log.Info().Msg("Authenticated with Tado")
	t.saveToken(tok)
	t.tokens = t.tokenSource(tok)
	return tok, nil
}

// tokenSource refreshes outside any single cycle's context
func (t *Tado) tokenSource(tok *oauth2.Token) oauth2.TokenSource {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, t.client)
	return t.oauth.TokenSource(ctx, tok)
}

func (t *Tado) loadToken() (*oauth2.Token, error) {
	if t.cfg.TokenFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(t.cfg.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, nil
	}
	return &tok, nil
}

// saveToken persists tok when it differs from the cached copy
func (t *Tado) saveToken(tok *oauth2.Token) {
	if t.cfg.TokenFile == "" {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if prev, err := os.ReadFile(t.cfg.TokenFile); err == nil && string(prev) == string(data) {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.cfg.TokenFile), 0o700); err != nil {
		t.log.Warn().Err(err).Msg("Could not create token directory")
		return
	}
	if err := os.WriteFile(t.cfg.TokenFile, data, 0o600); err != nil {
		t.log.Warn().Err(err).Msg("Could not cache Tado token")
	}
}
