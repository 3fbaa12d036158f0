// Package sdk provides the VaultCore Go SDK for maintaining a client-side
// authentication session against the VaultCore identity service.
package sdk

import "net/http"

type authStrategy interface {
	Apply(req *http.Request)
}

type authChain []authStrategy

func (c authChain) Apply(req *http.Request) {
	for _, s := range c {
		if s == nil {
			continue
		}
		s.Apply(req)
	}
}

type bearerAuth struct {
	token string
}

func (b bearerAuth) Apply(req *http.Request) {
	if b.token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
}
