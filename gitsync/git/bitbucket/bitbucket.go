package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/byte4ever/codepublish/gitsync/git"
)

const (
	defaultAPIBaseURL   = "https://api.bitbucket.org/2.0"
	defaultOAuthBaseURL = "https://bitbucket.org/site/oauth2"
	defaultWebHost      = "bitbucket.org"
	pageLen             = 100
)

// Config holds the Bitbucket OAuth consumer settings.
type Config struct {
	// ClientID and ClientSecret are the OAuth consumer key
	// and secret.
	ClientID     string
	ClientSecret string
	// BotName and BotEmail author generated commits.
	BotName  string
	BotEmail string
	// APIBaseURL overrides the REST API root.
	APIBaseURL string
	// OAuthBaseURL overrides the root serving authorize and
	// access_token.
	OAuthBaseURL string
}

// Provider talks to Bitbucket Cloud with one OAuth
// credential.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	http        *http.Client
	oauth       *oauth2.Config
	apiBase     string
	accessToken string
	bot         git.Identity
}

var _ git.Provider = (*Provider)(nil)

var capabilities = git.NewCapabilitySet(git.AllCapabilities()...).
	Without(git.CapOrganization, git.CapDeleteOrganization)

// NewProvider validates cfg and returns a Provider using the
// access token of inst. An empty token is accepted for the
// OAuth install flow.
func NewProvider(cfg Config, inst git.Installation) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf(
			"%s: client id and secret must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	if cfg.BotName == "" || cfg.BotEmail == "" {
		return nil, fmt.Errorf(
			"%s: bot name and email must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	apiBase := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}

	oauthBase := strings.TrimSuffix(cfg.OAuthBaseURL, "/")
	if oauthBase == "" {
		oauthBase = defaultOAuthBaseURL
	}

	return &Provider{
		http: oauth2.NewClient(
			context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: inst.Credential.AccessToken,
			}),
		),
		apiBase:     apiBase,
		accessToken: inst.Credential.AccessToken,
		bot:         git.Identity{Name: cfg.BotName, Email: cfg.BotEmail},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oauthBase + "/authorize",
				TokenURL:  oauthBase + "/access_token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}, nil
}

// Identity implements git.Provider.
func (p *Provider) Identity() git.ProviderIdentity {
	return git.ProviderIdentity{Name: git.KindBitbucket, Domain: defaultWebHost}
}

// Supports implements git.Capable.
func (p *Provider) Supports(c git.Capability) bool {
	return capabilities.Has(c)
}

// InstallationURL implements git.Authenticator.
func (p *Provider) InstallationURL(
	_ context.Context,
	state string,
) (string, error) {
	return p.oauth.AuthCodeURL(state), nil
}

// ExchangeCode implements git.Authenticator.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
) (*git.OAuthCredential, error) {
	cred, err := git.ExchangeOAuthCode(ctx, p.oauth, code)

	return cred, git.WrapOp(
		git.KindBitbucket, string(git.CapExchangeCode), git.RepoRef{}, "", err,
	)
}

// RefreshCredential implements git.Authenticator.
func (p *Provider) RefreshCredential(
	ctx context.Context,
	refreshToken string,
) (*git.OAuthCredential, error) {
	cred, err := git.RefreshOAuthCredential(ctx, p.oauth, refreshToken)

	return cred, git.WrapOp(
		git.KindBitbucket, string(git.CapRefreshCredential),
		git.RepoRef{}, "", err,
	)
}

// CurrentUser implements git.Authenticator.
func (p *Provider) CurrentUser(
	ctx context.Context,
	accessToken string,
) (*git.CurrentUser, error) {
	client := oauth2.NewClient(
		ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	)

	req, err := p.newRequest(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return nil, p.fail(git.CapCurrentUser, git.RepoRef{}, "", err)
	}

	var u account
	if err := send(client, req, &u); err != nil {
		return nil, p.fail(git.CapCurrentUser, git.RepoRef{}, "", err)
	}

	return &git.CurrentUser{
		Username:                   u.Username,
		DisplayName:                u.DisplayName,
		UUID:                       u.UUID,
		AvatarURL:                  u.Links.Avatar.Href,
		UseGroupingForRepositories: true,
	}, nil
}

// CloneToken implements git.Cloner with the OAuth access
// token.
func (p *Provider) CloneToken(context.Context) (string, error) {
	if p.accessToken == "" {
		return "", &git.OpError{
			Provider: git.KindBitbucket,
			Op:       string(git.CapCloneURL),
			Err: fmt.Errorf(
				"access token must be set: %w", git.ErrConfiguration,
			),
		}
	}

	return p.accessToken, nil
}

// CloneURL implements git.Cloner.
func (p *Provider) CloneURL(ref git.RepoRef, token string) string {
	u := url.URL{
		Scheme: "https",
		User:   url.UserPassword("x-token-auth", token),
		Host:   defaultWebHost,
		Path:   "/" + ref.Namespace() + "/" + ref.Name + ".git",
	}

	return u.String()
}

// BotIdentity implements git.Branches with the configured
// bot.
func (p *Provider) BotIdentity(context.Context) (*git.Identity, error) {
	bot := p.bot

	return &bot, nil
}

// apiError is a non-2xx answer. A 404 matches
// git.ErrNotFound.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (e *apiError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return git.ErrNotFound
	}

	return nil
}

// repoPath is the API path of ref, with suffix segments
// appended. Each segment is escaped whole, so branch names
// may contain slashes.
func repoPath(ref git.RepoRef, segments ...string) string {
	var sb strings.Builder

	sb.WriteString("/repositories/")
	sb.WriteString(url.PathEscape(ref.Namespace()))
	sb.WriteString("/")
	sb.WriteString(url.PathEscape(ref.Name))

	for _, s := range segments {
		sb.WriteString("/")
		sb.WriteString(url.PathEscape(s))
	}

	return sb.String()
}

// escapePath escapes each segment of a slash separated path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}

// newRequest builds a JSON request. endpoint is an API path
// or an absolute "next" link.
func (p *Provider) newRequest(
	ctx context.Context,
	method string,
	endpoint string,
	body any,
) (*http.Request, error) {
	const errCtx = "building request"

	if !strings.HasPrefix(endpoint, "http://") &&
		!strings.HasPrefix(endpoint, "https://") {
		endpoint = p.apiBase + endpoint
	}

	var rd io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal: %w", errCtx, err)
		}

		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	req.Header.Set("Accept", "application/json")

	return req, nil
}

// send runs req and decodes a 2xx JSON body into out when out
// is not nil.
func send(client *http.Client, req *http.Request, out any) error {
	rb, err := sendRaw(client, req)
	if err != nil {
		return err
	}

	if out == nil || len(rb) == 0 {
		return nil
	}

	if err := json.Unmarshal(rb, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// sendRaw runs req and returns the 2xx body as is.
func sendRaw(client *http.Client, req *http.Request) ([]byte, error) {
	const errCtx = "sending request"

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", errCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode != http.StatusNotFound {
			slog.Warn(
				"bitbucket response",
				"status", resp.Status,
				"body", string(rb),
			)
		}

		return nil, &apiError{Status: resp.StatusCode, Body: string(rb)}
	}

	return rb, nil
}

func readBody(resp *http.Response) (string, error) {
	rb, err := io.ReadAll(resp.Body)

	return string(rb), err
}

// call is newRequest followed by send on the provider
// client.
func (p *Provider) call(
	ctx context.Context,
	method string,
	endpoint string,
	body any,
	out any,
) error {
	req, err := p.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	return send(p.http, req, out)
}

func (p *Provider) fail(
	op git.Capability,
	ref git.RepoRef,
	branch string,
	err error,
) error {
	return git.WrapOp(git.KindBitbucket, string(op), ref, branch, err)
}
