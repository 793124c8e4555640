package httpapi

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"inkwell.org/internal/audit"
	"inkwell.org/internal/auth"
	"inkwell.org/internal/content"
)

func (a *API) postOwner() auth.OwnerResolver {
	return auth.OwnerResolverFunc(a.opts.Posts.OwnerID)
}

// handlePosts serves GET (list) and POST (create). Any authenticated caller
// may do both; the author is always the caller.
func (a *API) handlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, ok := a.authorize(w, r, nil, "", nil)
		if !ok {
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
			return
		}
		offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "offset "+err.Error())
			return
		}
		posts, err := a.opts.Posts.List(r.Context(), limit, offset)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if posts == nil {
			posts = []*content.Post{}
		}
		writeJSON(w, http.StatusOK, posts)

	case http.MethodPost:
		a.handlePostCreate(w, r)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type postRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (req postRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 256)),
		validation.Field(&req.Body, validation.Length(0, 65536)),
	)
}

func (a *API) handlePostCreate(w http.ResponseWriter, r *http.Request) {
	r, ok := a.authorize(w, r, nil, "", nil)
	if !ok {
		return
	}
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	post, err := a.opts.Posts.Create(r.Context(), claims.Subject, content.CreateInput{
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.Event(r.Context(), "post.created", map[string]any{"post_id": post.ID})
	writeJSON(w, http.StatusCreated, post)
}

// handlePostByID serves GET, PUT and DELETE on /posts/{id}. Reads are open to
// any authenticated caller; writes require admin or ownership.
func (a *API) handlePostByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/posts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		r, ok := a.authorize(w, r, nil, "", nil)
		if !ok {
			return
		}
		post, err := a.opts.Posts.Get(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)

	case http.MethodPut:
		r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermPostUpdateOwner}, id, a.postOwner())
		if !ok {
			return
		}
		var req postRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		update := content.UpdateInput{}
		if req.Title != "" {
			update.Title = &req.Title
		}
		if req.Body != "" {
			update.Body = &req.Body
		}
		post, err := a.opts.Posts.Update(r.Context(), id, update)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.Event(r.Context(), "post.updated", map[string]any{"post_id": id})
		writeJSON(w, http.StatusOK, post)

	case http.MethodDelete:
		r, ok := a.authorize(w, r, []string{auth.PermAdmin, auth.PermPostDeleteOwner}, id, a.postOwner())
		if !ok {
			return
		}
		if err := a.opts.Posts.Delete(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.Event(r.Context(), "post.deleted", map[string]any{"post_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
