package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-identity/social"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// SkipIDTokenVerify disables local id_token verification and falls
	// back to the userinfo endpoint.
	SkipIDTokenVerify bool

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements social.Provider for Google.
type Provider struct {
	config     Config
	httpClient *http.Client
	validator  *IDTokenValidator
}

// New creates a new Google provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// WithIDTokenValidator sets the validator used to check id_token signatures.
func (p *Provider) WithIDTokenValidator(v *IDTokenValidator) *Provider {
	p.validator = v
	return p
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "google"
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(p.config.Scopes, opts...)
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
		"access_type":   {"offline"},
	}

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements social.Provider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.CallbackURL},
		"grant_type":    {"authorization_code"},
	}

	if cfg.CodeVerifier != "" {
		data.Set("code_verifier", cfg.CodeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, providerError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response", err)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		code, desc := tokenResp.Error, tokenResp.ErrorDesc
		if code == "" && desc == "" {
			code, desc = parseGoogleError(body)
		}
		return nil, providerError("exchange", resp.StatusCode, code, desc, nil)
	}
	if tokenResp.AccessToken == "" {
		return nil, providerError("exchange", resp.StatusCode, "missing_access_token", "missing access token", nil)
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &social.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       splitSpaceScopes(tokenResp.Scope),
		Raw: map[string]any{
			"id_token": tokenResp.IDToken,
		},
	}, nil
}

// UserInfo implements social.Provider. When the exchange produced an
// id_token and a validator is configured, the profile comes from the
// locally verified claims; otherwise the userinfo endpoint is queried.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	if !p.config.SkipIDTokenVerify && p.validator != nil {
		if idToken, ok := token.Raw["id_token"].(string); ok && idToken != "" {
			claims, err := p.validator.Validate(idToken)
			if err != nil {
				return nil, providerError("user_info", 0, "invalid_id_token", "id token verification failed", err)
			}
			return claims.profile(), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		code, description := parseGoogleError(body)
		return nil, providerError("user_info", resp.StatusCode, code, description, nil)
	}

	var userInfo googleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode userinfo response", err)
	}

	return mapProfile(&userInfo), nil
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

type googleErrorResponse struct {
	Error string `json:"error"`
	Desc  string `json:"error_description"`
}

type googleAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseGoogleError(body []byte) (string, string) {
	var plain googleErrorResponse
	if err := json.Unmarshal(body, &plain); err == nil && (plain.Error != "" || plain.Desc != "") {
		return plain.Error, plain.Desc
	}

	var api googleAPIError
	if err := json.Unmarshal(body, &api); err == nil && (api.Error.Message != "" || api.Error.Status != "") {
		code := api.Error.Status
		if code == "" && api.Error.Code != 0 {
			code = fmt.Sprintf("%d", api.Error.Code)
		}
		return code, api.Error.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "google request failed"
	}

	return "", msg
}

func splitSpaceScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}

	parts := strings.Fields(scopes)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "google",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
