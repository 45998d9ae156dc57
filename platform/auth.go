package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
)

type LoginConfig struct {
	// PDS host URL, eg "https://bsky.social"
	Host string
	// handle or email
	Identifier string
	Password   string
	UserAgent  string
	HTTP       *http.Client
}

// Creates a session for the account and returns an authenticated client.
func Login(ctx context.Context, config LoginConfig) (*Client, error) {
	if config.Host == "" || config.Identifier == "" || config.Password == "" {
		return nil, fmt.Errorf("platform host, identifier, and password are all required")
	}
	if config.HTTP == nil {
		config.HTTP = http.DefaultClient
	}
	if config.UserAgent == "" {
		config.UserAgent = "herald"
	}
	xrpcc := &xrpc.Client{
		Client:    config.HTTP,
		Host:      strings.TrimSuffix(config.Host, "/"),
		UserAgent: &config.UserAgent,
	}

	out, err := comatproto.ServerCreateSession(ctx, xrpcc, &comatproto.ServerCreateSession_Input{
		Identifier: config.Identifier,
		Password:   config.Password,
	})
	if err != nil {
		loginCount.WithLabelValues("error").Inc()
		return nil, apiError(err)
	}
	if out.Active != nil && !*out.Active {
		loginCount.WithLabelValues("inactive").Inc()
		status := ""
		if out.Status != nil {
			status = *out.Status
		}
		return nil, fmt.Errorf("account is disabled: %q", status)
	}
	if !strings.HasPrefix(out.Did, "did:") {
		return nil, fmt.Errorf("invalid DID in session response: %q", out.Did)
	}
	loginCount.WithLabelValues("ok").Inc()

	xrpcc.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	return &Client{
		xrpcc:  xrpcc,
		did:    out.Did,
		handle: out.Handle,
	}, nil
}

// `priorRefreshToken` is used to detect that a concurrent refresh already happened.
func (c *Client) refresh(ctx context.Context, priorRefreshToken string) error {
	c.lk.Lock()
	defer c.lk.Unlock()

	if priorRefreshToken != "" && priorRefreshToken != c.xrpcc.Auth.RefreshJwt {
		return nil
	}

	// NOTE: refresh token here, not access token
	xc := *c.xrpcc
	xc.Auth = &xrpc.AuthInfo{
		AccessJwt: c.xrpcc.Auth.RefreshJwt,
		Did:       c.xrpcc.Auth.Did,
		Handle:    c.xrpcc.Auth.Handle,
	}
	out, err := comatproto.ServerRefreshSession(ctx, &xc)
	if err != nil {
		return fmt.Errorf("refreshing session: %w", apiError(err))
	}
	c.xrpcc.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     c.xrpcc.Auth.Handle,
		Did:        c.xrpcc.Auth.Did,
	}
	return nil
}
