package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scy"
)

// TokenProvider returns a bearer token provider backed by the configured
// scy secret, or nil when no secret is configured. The secret may hold the
// token itself or a JSON object with a "token" field. It is loaded once.
func (c *Config) TokenProvider(svc *scy.Service) sdk.TokenProvider {
	if c.Auth.SecretURL == "" {
		return nil
	}
	if svc == nil {
		svc = scy.New()
	}
	var (
		mu    sync.Mutex
		token string
	)
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if token != "" {
			return token, nil
		}
		res := scy.NewResource(nil, c.Auth.SecretURL, c.Auth.Key)
		secret, err := svc.Load(ctx, res)
		if err != nil {
			return "", fmt.Errorf("failed to load secret %s: %w", c.Auth.SecretURL, err)
		}
		value, err := tokenOf(secret.String())
		if err != nil {
			return "", err
		}
		token = value
		return token, nil
	}
}

func tokenOf(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "{") {
		var rec struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(secret), &rec); err != nil {
			return "", fmt.Errorf("failed to decode secret: %w", err)
		}
		secret = strings.TrimSpace(rec.Token)
	}
	if secret == "" {
		return "", fmt.Errorf("secret holds no token")
	}
	return secret, nil
}
