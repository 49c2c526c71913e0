// Package secrets resolves the relay credentials the dispatch engine and the
// immediate-send path need. Retrieval happens per invocation so a rotated
// credential is picked up without a restart; a retrieval failure makes the
// whole invocation fail.
package secrets

import (
	"context"
	"fmt"
	"os"
)

type Credentials struct {
	Username string
	Password string
}

type Provider interface {
	SMTPCredentials(ctx context.Context) (Credentials, error)
}

// EnvProvider reads credentials from the environment on every call.
type EnvProvider struct {
	UsernameKey string
	PasswordKey string
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{
		UsernameKey: "SMTP_USERNAME",
		PasswordKey: "SMTP_PASSWORD",
	}
}

func (p *EnvProvider) SMTPCredentials(context.Context) (Credentials, error) {
	user := os.Getenv(p.UsernameKey)
	pass := os.Getenv(p.PasswordKey)
	if user == "" || pass == "" {
		return Credentials{}, fmt.Errorf("failed to retrieve SMTP credentials: %s/%s not set",
			p.UsernameKey, p.PasswordKey)
	}
	return Credentials{Username: user, Password: pass}, nil
}

// Static returns a provider that always yields the given credentials.
func Static(c Credentials) Provider {
	return staticProvider{creds: c}
}

type staticProvider struct {
	creds Credentials
}

func (p staticProvider) SMTPCredentials(context.Context) (Credentials, error) {
	return p.creds, nil
}
