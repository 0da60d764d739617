package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
)

// mountTTS wires the text-to-speech announcement routes. Speech
// synthesis itself is explicitly out of scope (no TTS engine adapter
// exists in this gateway); the routes are real so clients get a crisp
// 501 rather than a 404, matching the "route recognises command but
// adapter absent" NotImplemented kind.
func (rt *Router) mountTTS(root chi.Router) {
	say := api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewNotImplementedError("text-to-speech synthesis is not implemented")
	})
	root.Method(http.MethodGet, "/{room}/say/{text}", say)
	root.Method(http.MethodGet, "/{room}/say/{text}/{volume}", say)
	root.Method(http.MethodGet, "/{room}/sayall/{text}", say)
	root.Method(http.MethodGet, "/{room}/sayall/{text}/{volume}", say)
	root.Method(http.MethodGet, "/sayall/{text}", say)
	root.Method(http.MethodGet, "/sayall/{text}/{volume}", say)
}
