package restdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Session is the actor identity returned by a partner store's password grant.
// Writes issued while the session is live carry its access token instead of
// the bare API key.
type Session struct {
	AccessToken string
	UserID      string
	ExpiresAt   time.Time
}

// Live reports whether the session token is still usable, with a small margin
// so a token never expires mid-save.
func (s Session) Live() bool {
	return s.AccessToken != "" && time.Now().Add(30*time.Second).Before(s.ExpiresAt)
}

// SignIn exchanges credentials for an access token via the password grant and
// installs the token on the client for subsequent writes.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, errors.New("email and password are required")
	}
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Session{}, fmt.Errorf("marshal credentials: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPost, c.base+"/auth/v1/token?grant_type=password", body, "")
	if err != nil {
		return Session{}, fmt.Errorf("password grant: %w", err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Session{}, fmt.Errorf("decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return Session{}, errors.New("token response carried no access token")
	}

	session := Session{
		AccessToken: resp.AccessToken,
		UserID:      resp.User.ID,
	}
	if claims, err := decodeTokenClaims(resp.AccessToken); err == nil {
		if session.UserID == "" {
			session.UserID = claims.Sub
		}
		session.ExpiresAt = time.Unix(claims.Exp, 0)
	}
	c.token = session.AccessToken
	return session, nil
}

// ClearSession drops the installed access token, reverting writes to the API key.
func (c *Client) ClearSession() {
	c.token = ""
}

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

// decodeTokenClaims reads the payload segment of the access token without
// verifying the signature. The partner signs with its own secret; this side
// only needs the subject and expiry.
func decodeTokenClaims(token string) (tokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return tokenClaims{}, errors.New("malformed token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return tokenClaims{}, fmt.Errorf("decode token payload: %w", err)
	}
	var claims tokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return tokenClaims{}, fmt.Errorf("unmarshal token claims: %w", err)
	}
	return claims, nil
}
