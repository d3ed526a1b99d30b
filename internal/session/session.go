// Package session tracks who is signed in. The engine subscribes to it to
// pick remote-backed vs local-only persistence and to drive the
// change-stream lifecycle.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wote-dev/simplr-web-sub000/internal/logger"
)

type State int

const (
	StateLoading State = iota
	StateGuest
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateGuest:
		return "guest"
	default:
		return "loading"
	}
}

// Provider exposes the current session and fires listeners on sign-in and
// sign-out.
type Provider interface {
	UserID() int64
	State() State
	OnChange(fn func(State))
}

// JWTProvider derives the session from an HS256 bearer token.
type JWTProvider struct {
	secret []byte

	mu        sync.Mutex
	state     State
	userID    int64
	token     string
	listeners []func(State)
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		state:  StateLoading,
	}
}

func (p *JWTProvider) UserID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

func (p *JWTProvider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *JWTProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *JWTProvider) OnChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetToken resolves the session from token. An empty, invalid or expired
// token means guest; listeners fire only when the state actually moves.
func (p *JWTProvider) SetToken(token string) {
	state := StateGuest
	var userID int64

	if token != "" {
		id, err := p.parse(token)
		if err != nil {
			logger.Warn("session: rejecting token", "error", err)
		} else {
			state = StateAuthenticated
			userID = id
		}
	}

	p.mu.Lock()
	changed := p.state != state || p.userID != userID
	p.state = state
	p.userID = userID
	p.token = token
	listeners := append([]func(State){}, p.listeners...)
	p.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(state)
		}
	}
}

// SignOut drops the session back to guest.
func (p *JWTProvider) SignOut() {
	p.SetToken("")
}

func (p *JWTProvider) parse(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}

	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < time.Now().Unix() {
			return 0, errors.New("token expired")
		}
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, errors.New("user_id not found")
	}
	return int64(userID), nil
}
