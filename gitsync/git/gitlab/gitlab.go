package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"

	"github.com/byte4ever/codepublish/gitsync/git"
)

const (
	defaultHost = "https://gitlab.com"
	perPage     = 100
)

// Scopes requested by the install flow.
var Scopes = []string{"api", "read_user", "write_repository"}

// Config holds the GitLab OAuth application settings.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// ClientID and ClientSecret are the OAuth application
	// credentials.
	ClientID     string
	ClientSecret string
	// RedirectURL is the OAuth callback registered on the
	// application.
	RedirectURL string
}

// Provider talks to GitLab with one OAuth credential.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	client      *gl.Client
	oauth       *oauth2.Config
	host        string
	accessToken string

	botMu sync.Mutex
	bot   *git.Identity
}

var _ git.Provider = (*Provider)(nil)

var capabilities = git.NewCapabilitySet(git.AllCapabilities()...).
	Without(git.CapOrganization, git.CapDeleteOrganization)

// NewProvider validates cfg and returns a Provider using the
// access token of inst. An empty token is accepted for the
// OAuth install flow.
func NewProvider(cfg Config, inst git.Installation) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf(
			"%s: client id and secret must be set: %w",
			errCtx, git.ErrConfiguration,
		)
	}

	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = defaultHost
	}

	if _, err := url.Parse(host); err != nil {
		return nil, fmt.Errorf(
			"%s: host: %w: %w", errCtx, git.ErrConfiguration, err,
		)
	}

	client, err := newClient(host, inst.Credential.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: new client: %w", errCtx, err)
	}

	return &Provider{
		client:      client,
		host:        host,
		accessToken: inst.Credential.AccessToken,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   host + "/oauth/authorize",
				TokenURL:  host + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}, nil
}

func newClient(host, token string) (*gl.Client, error) {
	return gl.NewOAuthClient(token, gl.WithBaseURL(host))
}

// Identity implements git.Provider.
func (p *Provider) Identity() git.ProviderIdentity {
	domain := p.host
	if u, err := url.Parse(p.host); err == nil {
		domain = u.Host
	}

	return git.ProviderIdentity{Name: git.KindGitLab, Domain: domain}
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
	client, err := newClient(p.host, accessToken)
	if err != nil {
		return nil, p.fail(git.CapCurrentUser, git.RepoRef{}, "", nil, err)
	}

	u, resp, err := client.Users.CurrentUser(gl.WithContext(ctx))
	if err != nil {
		return nil, p.fail(git.CapCurrentUser, git.RepoRef{}, "", resp, err)
	}

	return &git.CurrentUser{
		Username:                   u.Username,
		DisplayName:                u.Name,
		UUID:                       strconv.Itoa(int(u.ID)),
		AvatarURL:                  u.AvatarURL,
		UseGroupingForRepositories: true,
	}, nil
}

// CloneToken implements git.Cloner with the OAuth access
// token.
func (p *Provider) CloneToken(context.Context) (string, error) {
	if p.accessToken == "" {
		return "", &git.OpError{
			Provider: git.KindGitLab,
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
	u, err := url.Parse(p.host)
	if err != nil {
		return ""
	}

	u.User = url.UserPassword("oauth2", token)
	u.Path = "/" + projectPath(ref) + ".git"

	return u.String()
}

// BotIdentity implements git.Branches: generated commits are
// authored by the token owner.
func (p *Provider) BotIdentity(ctx context.Context) (*git.Identity, error) {
	p.botMu.Lock()
	defer p.botMu.Unlock()

	if p.bot != nil {
		return p.bot, nil
	}

	u, resp, err := p.client.Users.CurrentUser(gl.WithContext(ctx))
	if err != nil {
		return nil, p.fail(git.CapBotIdentity, git.RepoRef{}, "", resp, err)
	}

	email := u.Email
	if email == "" {
		email = u.PublicEmail
	}

	p.bot = &git.Identity{Name: u.Name, Email: email, Login: u.Username}

	return p.bot, nil
}

// projectPath is the URL-safe "namespace/name" project id.
func projectPath(ref git.RepoRef) string {
	return ref.Namespace() + "/" + ref.Name
}

// fail wraps err with operation context, marking 404
// answers as git.ErrNotFound.
func (p *Provider) fail(
	op git.Capability,
	ref git.RepoRef,
	branch string,
	resp *gl.Response,
	err error,
) error {
	if isStatus(resp, http.StatusNotFound) {
		err = fmt.Errorf("%w: %w", git.ErrNotFound, err)
	}

	return git.WrapOp(git.KindGitLab, string(op), ref, branch, err)
}

func isStatus(resp *gl.Response, code int) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == code
}
