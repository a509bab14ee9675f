package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/byte4ever/codepublish/gitsync/git"
)

const (
	defaultHost         = "github.com"
	defaultOAuthBaseURL = "https://github.com"
	tokenTimeout        = 30 * time.Second
	perPage             = 100
)

// Config holds the GitHub App settings.
type Config struct {
	// AppID is the numeric GitHub App id.
	AppID int64
	// PrivateKey is the App private key in PEM form.
	PrivateKey string
	// ClientID and ClientSecret are the App OAuth
	// credentials.
	ClientID     string
	ClientSecret string
	// InstallationURL is the App public install page, e.g.
	// "https://github.com/apps/<slug>/installations/new".
	InstallationURL string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL overrides the REST API root.
	BaseURL string
	// OAuthBaseURL overrides the web root serving
	// /login/oauth/*.
	OAuthBaseURL string
}

// Provider talks to GitHub on behalf of one App
// installation.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	app            *gh.Client
	client         *gh.Client
	oauth          *oauth2.Config
	tokens         oauth2.TokenSource
	installationID int64
	host           string
	installURL     string
	apiBase        *url.URL

	botMu sync.Mutex
	bot   *git.Identity
}

var _ git.Provider = (*Provider)(nil)

var capabilities = git.NewCapabilitySet(git.AllCapabilities()...).
	Without(git.CapListGroups)

// NewProvider validates cfg and returns a Provider bound to
// inst. An empty installation id is accepted for the OAuth
// install flow; installation-scoped calls then fail with
// git.ErrConfiguration.
func NewProvider(cfg Config, inst git.Installation) (*Provider, error) {
	const errCtx = "creating github provider"

	switch {
	case cfg.AppID == 0:
		return nil, fmt.Errorf(
			"%s: app id must be set: %w", errCtx, git.ErrConfiguration,
		)
	case cfg.PrivateKey == "":
		return nil, fmt.Errorf(
			"%s: private key must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	case cfg.ClientID == "" || cfg.ClientSecret == "":
		return nil, fmt.Errorf(
			"%s: client id and secret must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf(
			"%s: private key: %w: %w", errCtx, git.ErrConfiguration, err,
		)
	}

	var installationID int64
	if inst.InstallationID != "" {
		installationID, err = strconv.ParseInt(inst.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: installation id %q: %w",
				errCtx, inst.InstallationID, git.ErrConfiguration,
			)
		}
	}

	host := defaultHost
	oauthBase := defaultOAuthBaseURL

	if cfg.EnterpriseHost != "" {
		host = cfg.EnterpriseHost
		oauthBase = "https://" + cfg.EnterpriseHost
	}

	if cfg.OAuthBaseURL != "" {
		oauthBase = strings.TrimSuffix(cfg.OAuthBaseURL, "/")
	}

	apiBase, err := apiBaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: base url: %w", errCtx, err)
	}

	app := newClient(&http.Client{Transport: &appTransport{
		appID: cfg.AppID,
		key:   key,
		base:  http.DefaultTransport,
		now:   time.Now,
	}}, apiBase)

	p := &Provider{
		app:            app,
		installationID: installationID,
		host:           host,
		installURL:     cfg.InstallationURL,
		apiBase:        apiBase,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oauthBase + "/login/oauth/authorize",
				TokenURL:  oauthBase + "/login/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	p.tokens = oauth2.ReuseTokenSource(nil, &installationTokens{
		app:            app,
		installationID: installationID,
		timeout:        tokenTimeout,
	})
	p.client = newClient(
		oauth2.NewClient(context.Background(), p.tokens), apiBase,
	)

	return p, nil
}

func apiBaseURL(cfg Config) (*url.URL, error) {
	switch {
	case cfg.BaseURL != "":
		return url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	case cfg.EnterpriseHost != "":
		return url.Parse("https://" + cfg.EnterpriseHost + "/api/v3/")
	default:
		return nil, nil
	}
}

func newClient(hc *http.Client, base *url.URL) *gh.Client {
	client := gh.NewClient(hc)
	if base != nil {
		client.BaseURL = base
	}

	return client
}

// Identity implements git.Provider.
func (p *Provider) Identity() git.ProviderIdentity {
	return git.ProviderIdentity{Name: git.KindGitHub, Domain: p.host}
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
	const errCtx = "building github installation url"

	if p.installURL == "" {
		return "", fmt.Errorf(
			"%s: installation url must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	return p.installURL + "?state=" + url.QueryEscape(state), nil
}

// ExchangeCode implements git.Authenticator.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
) (*git.OAuthCredential, error) {
	cred, err := git.ExchangeOAuthCode(ctx, p.oauth, code)
	if err != nil {
		return nil, p.fail(git.CapExchangeCode, git.RepoRef{}, "", nil, err)
	}

	return cred, nil
}

// RefreshCredential implements git.Authenticator.
func (p *Provider) RefreshCredential(
	ctx context.Context,
	refreshToken string,
) (*git.OAuthCredential, error) {
	cred, err := git.RefreshOAuthCredential(ctx, p.oauth, refreshToken)
	if err != nil {
		return nil, p.fail(
			git.CapRefreshCredential, git.RepoRef{}, "", nil, err,
		)
	}

	return cred, nil
}

// CurrentUser implements git.Authenticator.
func (p *Provider) CurrentUser(
	ctx context.Context,
	accessToken string,
) (*git.CurrentUser, error) {
	client := newClient(nil, p.apiBase).WithAuthToken(accessToken)

	u, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, p.fail(git.CapCurrentUser, git.RepoRef{}, "", resp, err)
	}

	return &git.CurrentUser{
		Username:    u.GetLogin(),
		DisplayName: u.GetName(),
		UUID:        strconv.FormatInt(u.GetID(), 10),
		AvatarURL:   u.GetAvatarURL(),
	}, nil
}

// CloneToken implements git.Cloner with the installation
// token.
func (p *Provider) CloneToken(context.Context) (string, error) {
	if err := p.requireInstallation(git.CapCloneURL); err != nil {
		return "", err
	}

	tok, err := p.tokens.Token()
	if err != nil {
		return "", p.fail(git.CapCloneURL, git.RepoRef{}, "", nil, err)
	}

	return tok.AccessToken, nil
}

// CloneURL implements git.Cloner.
func (p *Provider) CloneURL(ref git.RepoRef, token string) string {
	return "https://x-access-token:" + token + "@" + p.host + "/" +
		ref.Owner + "/" + ref.Name + ".git"
}

// BotIdentity implements git.Branches. The App acts as
// "<slug>[bot]" with the noreply address GitHub assigns to
// the bot user.
func (p *Provider) BotIdentity(ctx context.Context) (*git.Identity, error) {
	p.botMu.Lock()
	defer p.botMu.Unlock()

	if p.bot != nil {
		return p.bot, nil
	}

	app, resp, err := p.app.Apps.Get(ctx, "")
	if err != nil {
		return nil, p.fail(git.CapBotIdentity, git.RepoRef{}, "", resp, err)
	}

	login := app.GetSlug() + "[bot]"

	user, resp, err := p.client.Users.Get(ctx, login)
	if err != nil {
		return nil, p.fail(git.CapBotIdentity, git.RepoRef{}, "", resp, err)
	}

	p.bot = &git.Identity{
		Name: login,
		Email: fmt.Sprintf(
			"%d+%s@users.noreply.%s", user.GetID(), login, p.host,
		),
		Login: login,
	}

	return p.bot, nil
}

func (p *Provider) requireInstallation(op git.Capability) error {
	if p.installationID != 0 {
		return nil
	}

	return &git.OpError{
		Provider: git.KindGitHub,
		Op:       string(op),
		Err: fmt.Errorf(
			"installation id must be set: %w", git.ErrConfiguration,
		),
	}
}

// fail wraps err with operation context, marking 404
// answers as git.ErrNotFound.
func (p *Provider) fail(
	op git.Capability,
	ref git.RepoRef,
	branch string,
	resp *gh.Response,
	err error,
) error {
	if isStatus(resp, http.StatusNotFound) {
		err = fmt.Errorf("%w: %w", git.ErrNotFound, err)
	}

	return git.WrapOp(git.KindGitHub, string(op), ref, branch, err)
}

func isStatus(resp *gh.Response, code int) bool {
	return resp != nil && resp.StatusCode == code
}

func isNotFound(resp *gh.Response, err error) bool {
	if isStatus(resp, http.StatusNotFound) {
		return true
	}

	var er *gh.ErrorResponse

	return errors.As(err, &er) && er.Response != nil &&
		er.Response.StatusCode == http.StatusNotFound
}
