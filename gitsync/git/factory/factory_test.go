package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/git/bitbucket"
	"github.com/byte4ever/codepublish/gitsync/git/factory"
	"github.com/byte4ever/codepublish/gitsync/git/gitlab"
)

func TestNew_dispatches_by_kind(t *testing.T) {
	t.Parallel()

	s := factory.Settings{
		GitLab: gitlab.Config{ClientID: "id", ClientSecret: "secret"},
		Bitbucket: bitbucket.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			BotName:      "bot",
			BotEmail:     "bot@example.com",
		},
	}

	gl, err := factory.New(git.KindGitLab, s, git.Installation{})
	require.NoError(t, err)
	assert.Equal(t, git.KindGitLab, gl.Identity().Name)

	bb, err := s.Build(git.KindBitbucket, git.Installation{})
	require.NoError(t, err)
	assert.Equal(t, git.KindBitbucket, bb.Identity().Name)
}

func TestNew_validates_selected_variant(t *testing.T) {
	t.Parallel()

	_, err := factory.New(git.KindGitHub, factory.Settings{}, git.Installation{})

	require.ErrorIs(t, err, git.ErrConfiguration)
	assert.ErrorContains(t, err, "github")
}

func TestNew_unknown_kind(t *testing.T) {
	t.Parallel()

	_, err := factory.New("gitea", factory.Settings{}, git.Installation{})

	assert.ErrorIs(t, err, git.ErrConfiguration)
}
