package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

// Credentials locates the OAuth client file downloaded from the Google
// Cloud console and the cached user token next to it.
type Credentials struct {
	ClientFile string
	TokenFile  string
}

// NewOAuthClient builds a Gmail client from explicit credential files
// with modify scope. A missing or unreadable token triggers the console
// authorization flow, and the fresh token is cached back to TokenFile.
func NewOAuthClient(ctx context.Context, creds Credentials) (gc.Client, error) {
	b, err := os.ReadFile(creds.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client file: %w", err)
	}

	tok, err := tokenFromFile(creds.TokenFile)
	if err != nil {
		tok, err = authorize(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(creds.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

// NewGmailctlClient reuses an existing gmailctl config directory, so
// users who already manage filters with gmailctl need no second OAuth
// setup. localcred owns the credential and token files in that directory
// and the scopes they were granted with.
func NewGmailctlClient(ctx context.Context, cfgDir string) (gc.Client, error) {
	svc, err := (localcred.Provider{}).Service(ctx, cfgDir)
	if err != nil {
		return nil, fmt.Errorf("gmailctl auth: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tok, nil
}

func authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(os.Stderr, "Open this link in your browser, then paste the authorization code:\n%v\n> ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
