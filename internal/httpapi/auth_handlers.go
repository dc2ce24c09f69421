package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"breakglass.org/internal/audit"
	"breakglass.org/internal/auth"
	"breakglass.org/internal/identity"
)

const sessionVerifyTimeout = 5 * time.Second

type sessionRequest struct {
	Username   string `json:"username"`
	Department string `json:"department"`
}

// handleSession exchanges a verified identity-provider token for a locally
// issued session token. First contact creates the directory record; returning
// subjects get their last-login bumped. The session token carries the admin
// flag from the directory, which provider tokens never do.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw := extractBearerToken(r)
	if raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="breakglass"`)
		writeError(w, r, http.StatusUnauthorized, "identity token is required")
		return
	}

	vctx, cancel := context.WithTimeout(r.Context(), sessionVerifyTimeout)
	id, err := a.idp.Verify(vctx, raw)
	cancel()
	if err != nil {
		var verr *identity.VerificationError
		code := auth.CodeInvalidToken
		msg := "identity token could not be validated"
		if errors.As(err, &verr) && verr.Expired() {
			code = auth.CodeTokenExpired
			msg = "identity token has expired"
		}
		payload := map[string]any{
			"error":           code,
			"message":         msg,
			"requires_reauth": true,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="breakglass"`)
		writeJSON(w, http.StatusUnauthorized, payload)
		return
	}

	// Profile hints are optional; an empty body is fine.
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !isEmptyBody(err) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := req.Username
	if username == "" {
		username = id.DisplayName
	}

	user, err := a.users.VerifyOrCreate(r.Context(), id.SubjectID, username, id.Email, req.Department)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}

	sessionToken, expiresAt, err := a.codec.Issue(user.SubjectID, user.Email, user.IsAdmin)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.session_issued", map[string]any{
		"subject_id": user.SubjectID,
		"admin":      user.IsAdmin,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      sessionToken,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"user":       user,
	})
}

// isEmptyBody reports whether decodeJSON failed only because no body was sent.
func isEmptyBody(err error) bool {
	return err != nil && (errors.Is(err, io.EOF) || err.Error() == "request body is required")
}
