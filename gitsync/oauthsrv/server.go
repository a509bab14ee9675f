package oauthsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/byte4ever/codepublish/gitsync/credstore"
	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/git/factory"
)

const requestTimeout = 60 * time.Second

// Handler holds the dependencies of the OAuth routes.
type Handler struct {
	store   credstore.Store
	builder factory.Builder
	states  *StateSigner
	logger  *slog.Logger
}

// Summary is the JSON answer of a completed callback.
type Summary struct {
	ID             string   `json:"id"`
	Provider       git.Kind `json:"provider"`
	Name           string   `json:"name"`
	InstallationID string   `json:"installationId,omitempty"`
}

// NewRouter returns the chi router serving the OAuth routes.
// states signs the state of every installation. A nil logger
// means slog.Default().
func NewRouter(
	store credstore.Store,
	builder factory.Builder,
	states *StateSigner,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		store:   store,
		builder: builder,
		states:  states,
		logger:  logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.healthCheck)
	r.Route("/oauth/{provider}", func(r chi.Router) {
		r.Get("/install", h.install)
		r.Get("/callback", h.callback)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// install redirects to the provider installation page.
// GET /oauth/{provider}/install?organization=<id>
func (h *Handler) install(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	orgID := r.URL.Query().Get("organization")
	if orgID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'organization' parameter.")

		return
	}

	p, err := h.builder.Build(kind, git.Installation{})
	if err != nil {
		h.fail(w, "Failed to build provider", err)

		return
	}

	state, err := h.states.Issue(kind, orgID)
	if err != nil {
		h.fail(w, "Failed to issue state", err)

		return
	}

	target, err := p.InstallationURL(r.Context(), state)
	if err != nil {
		h.fail(w, "Failed to get installation URL", err)

		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// callback completes the installation and stores the record.
// GET /oauth/{provider}/callback?code=<code>&state=<state>
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	state := q.Get("state")
	if state == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'state' parameter.")

		return
	}

	orgID, err := h.states.Verify(kind, state)
	if err != nil {
		h.logger.Warn("rejected oauth state", "provider", string(kind), "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid 'state' parameter.")

		return
	}

	var org *credstore.Organization

	if id := q.Get("installation_id"); id != "" {
		org, err = h.completeInstallation(r.Context(), kind, orgID, id)
	} else {
		code := q.Get("code")
		if code == "" {
			respondWithError(w, http.StatusBadRequest, "Missing 'code' parameter.")

			return
		}

		org, err = h.completeOAuth(r.Context(), kind, orgID, code)
	}

	if err != nil {
		h.fail(w, "Failed to complete installation", err)

		return
	}

	if err := h.checkRebind(r.Context(), org); err != nil {
		h.fail(w, "Organization is bound to another installation", err)

		return
	}

	if err := h.store.Save(r.Context(), *org); err != nil {
		h.fail(w, "Failed to save organization", err)

		return
	}

	h.logger.Info(
		"organization connected",
		"organization", org.ID,
		"provider", string(org.Provider),
		"name", org.Name,
	)

	respondWithJSON(w, http.StatusOK, Summary{
		ID:             org.ID,
		Provider:       org.Provider,
		Name:           org.Name,
		InstallationID: org.InstallationID,
	})
}

// completeInstallation names the record after the account
// the App installation is bound to.
func (h *Handler) completeInstallation(
	ctx context.Context,
	kind git.Kind,
	orgID string,
	installationID string,
) (*credstore.Organization, error) {
	const errCtx = "completing app installation"

	p, err := h.builder.Build(kind, git.Installation{InstallationID: installationID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	account, err := p.Organization(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &credstore.Organization{
		ID:             orgID,
		Provider:       kind,
		InstallationID: installationID,
		Name:           account.Name,
	}, nil
}

// completeOAuth exchanges code and names the record after the
// token owner.
func (h *Handler) completeOAuth(
	ctx context.Context,
	kind git.Kind,
	orgID string,
	code string,
) (*credstore.Organization, error) {
	const errCtx = "completing oauth flow"

	p, err := h.builder.Build(kind, git.Installation{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cred, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	user, err := p.CurrentUser(ctx, cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	installationID := user.UUID
	if installationID == "" {
		installationID = user.Username
	}

	return &credstore.Organization{
		ID:             orgID,
		Provider:       kind,
		InstallationID: installationID,
		Name:           user.Username,
		Credential:     *cred,
	}, nil
}

// checkRebind refuses to move an existing record to another
// provider or installation.
func (h *Handler) checkRebind(
	ctx context.Context,
	org *credstore.Organization,
) error {
	const errCtx = "checking existing organization"

	existing, err := h.store.Get(ctx, org.ID)

	switch {
	case errors.Is(err, git.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", errCtx, err)
	case existing.Provider != org.Provider ||
		existing.InstallationID != org.InstallationID:
		return fmt.Errorf(
			"%s %q: bound to %s installation %q: %w",
			errCtx, org.ID, existing.Provider, existing.InstallationID,
			git.ErrConflict,
		)
	}

	return nil
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (git.Kind, bool) {
	kind, err := git.ParseKind(chi.URLParam(r, "provider"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Unknown provider.")

		return "", false
	}

	return kind, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, git.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, git.ErrNotSupported):
		status = http.StatusNotImplemented
	case errors.Is(err, git.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, git.ErrConfiguration):
		status = http.StatusBadGateway
	}

	h.logger.Error(msg, "error", err)
	respondWithError(w, status, msg)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
