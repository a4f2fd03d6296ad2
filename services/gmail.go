package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/coldpath/coldpath-backend/models"
)

// GoogleOAuthConfig builds the OAuth2 config for connecting a Gmail sender.
func GoogleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		Scopes: []string{
			gmail.GmailSendScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
}

// ExchangeGmailCode turns an OAuth callback code into a connected account:
// exchanges the code, asks Gmail which mailbox the grant belongs to, and
// returns the account row ready to persist.
func ExchangeGmailCode(ctx context.Context, orgID, userID uint, code string) (*models.GmailAccount, error) {
	cfg := GoogleOAuthConfig()
	tok, err := cfg.Exchange(ctx, code, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail service init failed: %w", err)
	}
	profile, err := svc.Users.GetProfile("me").Do()
	if err != nil {
		return nil, fmt.Errorf("gmail profile fetch failed: %w", err)
	}

	return &models.GmailAccount{
		OrgID:        orgID,
		UserID:       userID,
		Email:        strings.ToLower(profile.EmailAddress),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
	}, nil
}

// SendGmail builds an RFC 2822 message and sends it through the connected
// account. Returns the Gmail message id. Token refreshes are persisted back
// to the account row so the refresh token keeps working across restarts.
func SendGmail(ctx context.Context, acct *models.GmailAccount, to, subject, body string) (string, error) {
	cfg := GoogleOAuthConfig()
	tok := &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		Expiry:       acct.TokenExpiry,
	}
	ts := cfg.TokenSource(ctx, tok)

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", fmt.Errorf("gmail service init failed: %w", err)
	}

	msg := &gmail.Message{Raw: encodeRFC2822(acct.Email, to, subject, body)}
	sent, err := svc.Users.Messages.Send("me", msg).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send failed: %w", err)
	}

	persistRefreshedToken(acct, ts)
	return sent.Id, nil
}

// encodeRFC2822 assembles a minimal single-part text message and encodes it
// the way the Gmail API wants raw payloads: base64url without padding.
func encodeRFC2822(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(b.String()))
}

func persistRefreshedToken(acct *models.GmailAccount, ts oauth2.TokenSource) {
	fresh, err := ts.Token()
	if err != nil || fresh.AccessToken == acct.AccessToken {
		return
	}
	acct.AccessToken = fresh.AccessToken
	acct.TokenExpiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		acct.RefreshToken = fresh.RefreshToken
	}
	if DB != nil {
		if err := DB.Model(acct).Updates(map[string]interface{}{
			"access_token":  acct.AccessToken,
			"refresh_token": acct.RefreshToken,
			"token_expiry":  acct.TokenExpiry,
		}).Error; err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token for %s: %v", acct.Email, err)
		}
	}
}
