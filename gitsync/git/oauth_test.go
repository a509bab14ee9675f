package git_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/byte4ever/codepublish/gitsync/git"
)

func tokenServer(tb testing.TB, body string) *oauth2.Config {
	tb.Helper()

	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)

				return
			}

			w.Header().Set("Content-Type", "application/json")
			//nolint:errcheck // test server
			w.Write([]byte(body))
		},
	))
	tb.Cleanup(ts.Close)

	return &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestExchangeOAuthCode(t *testing.T) {
	t.Parallel()

	conf := tokenServer(t, `{"access_token":"a","refresh_token":"r",`+
		`"token_type":"bearer","expires_in":3600,"scope":"repo,user"}`)

	before := time.Now()

	cred, err := git.ExchangeOAuthCode(context.Background(), conf, "code")

	require.NoError(t, err)
	assert.Equal(t, "a", cred.AccessToken)
	assert.Equal(t, "r", cred.RefreshToken)
	assert.Equal(t, []string{"repo", "user"}, cred.Scopes)
	assert.Greater(t, cred.ExpiresAt, before.UnixMilli())
}

func TestExchangeOAuthCode_empty_code(t *testing.T) {
	t.Parallel()

	_, err := git.ExchangeOAuthCode(
		context.Background(), &oauth2.Config{}, "",
	)

	assert.ErrorIs(t, err, git.ErrConfiguration)
}

func TestRefreshOAuthCredential_keeps_refresh_token(t *testing.T) {
	t.Parallel()

	conf := tokenServer(t, `{"access_token":"new","token_type":"bearer",`+
		`"scope":"repository pullrequest"}`)

	cred, err := git.RefreshOAuthCredential(
		context.Background(), conf, "old-refresh",
	)

	require.NoError(t, err)
	assert.Equal(t, "new", cred.AccessToken)
	assert.Equal(t, "old-refresh", cred.RefreshToken)
	assert.Equal(t, []string{"repository", "pullrequest"}, cred.Scopes)
	assert.Zero(t, cred.ExpiresAt)
}

func TestRefreshOAuthCredential_missing_token(t *testing.T) {
	t.Parallel()

	_, err := git.RefreshOAuthCredential(
		context.Background(), &oauth2.Config{}, "",
	)

	assert.ErrorIs(t, err, git.ErrConfiguration)
}
