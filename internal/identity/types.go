package identity

import (
	"encoding/json"
	"errors"
	"time"

	"gatekeep/internal/credential"
)

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Data     credential.Profile `json:"data"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type idTokenRequest struct {
	IDToken  string `json:"id_token"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce,omitempty"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

type updateUserRequest struct {
	Password string `json:"password"`
}

type userResponse struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	UserMetadata credential.Profile `json:"user_metadata"`
}

// sessionResponse is the session document returned by sign-up, the token
// grants and verify. Sign-up and verify may also answer with a bare user,
// in which case only the embedded user fields are set.
type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`

	userResponse
}

// errorResponse covers both error documents the identity API emits:
// {"error","error_description"} from the token grants and
// {"code","error_code","msg"} from everything else.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func parseErrorBody(body []byte) (code, message string) {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	code = e.ErrorCode
	if code == "" {
		code = e.Error
	}
	switch {
	case e.ErrorDescription != "":
		message = e.ErrorDescription
	case e.Msg != "":
		message = e.Msg
	default:
		message = e.Message
	}
	return code, message
}

var errNoAccessToken = errors.New("response has no access_token")

// toCredential turns a session document into a Credential. Identity and
// expiry details missing from the document are read from the access token's
// claims when it is a JWT.
func (s *sessionResponse) toCredential(now time.Time) (*credential.Credential, error) {
	if s.AccessToken == "" {
		return nil, errNoAccessToken
	}

	cred := &credential.Credential{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	if s.User != nil {
		cred.UserID = s.User.ID
		cred.Email = s.User.Email
		cred.DisplayName = s.User.UserMetadata.FullName
	}

	switch {
	case s.ExpiresIn > 0:
		cred.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	case s.ExpiresAt > 0:
		cred.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}

	if cred.ExpiresAt.IsZero() || cred.UserID == "" || cred.Email == "" || cred.DisplayName == "" {
		if claims, err := credential.ClaimsFromAccessToken(s.AccessToken); err == nil {
			if cred.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
				cred.ExpiresAt = claims.ExpiresAt.Time
			}
			if cred.UserID == "" {
				cred.UserID = claims.Subject
			}
			if cred.Email == "" {
				cred.Email = claims.Email
			}
			if cred.DisplayName == "" {
				cred.DisplayName = claims.FullName()
			}
		}
	}

	if cred.ExpiresAt.IsZero() {
		return nil, errors.New("response has neither expires_in nor a token expiry")
	}
	return cred, nil
}
