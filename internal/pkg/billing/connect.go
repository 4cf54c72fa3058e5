package billing

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gothstripe "github.com/markbates/goth/providers/stripe"
)

// EntityType names the owner of a Connect account.
type EntityType string

const (
	EntityAgency     EntityType = "agency"
	EntitySubAccount EntityType = "subaccount"

	connectScope          = "read_write"
	connectStateAction    = "launchpad"
	connectStateSeparator = "___"
)

var ErrInvalidConnectState = errors.New("invalid connect state")

// Redirect targets of the Connect OAuth callback.
const (
	RedirectOAuthError       = "/agency?error=oauth_error"
	RedirectMissingParams    = "/agency?error=missing_params"
	RedirectProcessingFailed = "/agency?error=processing_failed"
)

func (e EntityType) Valid() bool {
	return e == EntityAgency || e == EntitySubAccount
}

// LaunchpadPath is where the callback lands for an entity.
func LaunchpadPath(entity EntityType, id string) string {
	return "/" + string(entity) + "/" + id + "/launchpad"
}

// BuildConnectState encodes the entity the OAuth flow was started for.
func BuildConnectState(entity EntityType, id string) string {
	return strings.Join([]string{string(entity), connectStateAction, id}, connectStateSeparator)
}

// ParseConnectState is the inverse of BuildConnectState.
func ParseConnectState(state string) (EntityType, string, error) {
	parts := strings.Split(state, connectStateSeparator)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidConnectState, state)
	}
	entity := EntityType(parts[0])
	if !entity.Valid() || parts[1] != connectStateAction || strings.TrimSpace(parts[2]) == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidConnectState, state)
	}
	return entity, parts[2], nil
}

// ConnectConfig holds the platform credentials of the Connect OAuth flow.
type ConnectConfig struct {
	ClientID    string
	SecretKey   string
	RedirectURI string
	// HTTPClient performs the token exchange; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

func (c ConnectConfig) provider() (*gothstripe.Provider, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return nil, errors.New("STRIPE_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return nil, errors.New("PUBLIC_DOMAIN is not configured")
	}
	p := gothstripe.New(c.ClientID, c.SecretKey, c.RedirectURI, connectScope)
	p.HTTPClient = c.HTTPClient
	return p, nil
}

// AuthorizeURLWithState builds the Connect OAuth authorize link.
func (c ConnectConfig) AuthorizeURLWithState(state string) (string, error) {
	p, err := c.provider()
	if err != nil {
		return "", err
	}
	sess, err := p.BeginAuth(state)
	if err != nil {
		return "", err
	}
	return sess.GetAuthURL()
}

// ExchangeCode trades an authorization code for the id of the connected account.
func (c ConnectConfig) ExchangeCode(code string) (accountID string, err error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return "", ErrStripeNotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return "", errors.New("oauth code is required")
	}
	p, err := c.provider()
	if err != nil {
		return "", err
	}

	// The goth session asserts stripe_user_id to a string and panics when the
	// token response lacks it.
	defer func() {
		if r := recover(); r != nil {
			accountID, err = "", fmt.Errorf("connect token response without stripe_user_id: %v", r)
		}
	}()

	sess := &gothstripe.Session{}
	if _, err := sess.Authorize(p, url.Values{"code": {strings.TrimSpace(code)}}); err != nil {
		return "", err
	}
	return sess.ID, nil
}
