package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coldpath/coldpath-backend/enrich"
)

const findymailBaseURL = "https://app.findymail.com"

// FindymailClient is the paid contact-lookup provider. It implements
// enrich.Provider; every successful find or verify burns one credit, which
// is why the coordinator sits in front of it.
type FindymailClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewFindymailClient() *FindymailClient {
	base := os.Getenv("FINDYMAIL_BASE_URL")
	if base == "" {
		base = findymailBaseURL
	}
	return &FindymailClient{
		apiKey:  os.Getenv("FINDYMAIL_API_KEY"),
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *FindymailClient) Name() string { return "findymail" }

type findymailContact struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Domain   string `json:"domain"`
	LinkedIn string `json:"linkedin_url"`
}

type findymailSearchResp struct {
	Contact findymailContact `json:"contact"`
	Error   string           `json:"error"`
	Message string           `json:"message"`
}

// FindEmailByLinkedIn calls POST /api/search/linkedin.
func (f *FindymailClient) FindEmailByLinkedIn(ctx context.Context, url string) (*enrich.Result, error) {
	raw, status, err := f.post(ctx, "/api/search/linkedin", map[string]string{"linkedin_url": url})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, enrich.ErrProviderNotFound
	}
	if status != http.StatusOK {
		return nil, f.apiError(status, raw)
	}

	var data findymailSearchResp
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &enrich.ProviderError{Provider: f.Name(), StatusCode: status, Message: "unparseable response"}
	}
	if data.Contact.Email == "" {
		// Findymail returns 200 with an empty contact when the profile
		// resolves but no deliverable address exists.
		return nil, enrich.ErrProviderNotFound
	}
	return &enrich.Result{
		Email:              strings.ToLower(strings.TrimSpace(data.Contact.Email)),
		Name:               data.Contact.Name,
		LinkedInURL:        url,
		VerificationStatus: "verified", // finder only returns deliverable addresses
		ProviderSource:     f.Name(),
	}, nil
}

type findymailVerifyResp struct {
	Verified bool   `json:"verified"`
	Provider string `json:"provider"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// VerifyEmail calls POST /api/verify.
func (f *FindymailClient) VerifyEmail(ctx context.Context, email string) (*enrich.Result, error) {
	raw, status, err := f.post(ctx, "/api/verify", map[string]string{"email": email})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, enrich.ErrProviderNotFound
	}
	if status != http.StatusOK {
		return nil, f.apiError(status, raw)
	}

	var data findymailVerifyResp
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &enrich.ProviderError{Provider: f.Name(), StatusCode: status, Message: "unparseable response"}
	}
	verification := "risky"
	if data.Verified {
		verification = "verified"
	}
	return &enrich.Result{
		Email:              strings.ToLower(strings.TrimSpace(email)),
		VerificationStatus: verification,
		ProviderSource:     f.Name(),
	}, nil
}

type findymailCreditsResp struct {
	Credits         int64 `json:"credits"`
	VerifierCredits int64 `json:"verifier_credits"`
}

// RemainingCredits calls GET /api/credits. Free endpoint.
func (f *FindymailClient) RemainingCredits(ctx context.Context) (*enrich.Credits, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("FINDYMAIL_API_KEY not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/credits", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &enrich.ProviderError{Provider: f.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, f.apiError(resp.StatusCode, raw)
	}
	var data findymailCreditsResp
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &enrich.ProviderError{Provider: f.Name(), StatusCode: resp.StatusCode, Message: "unparseable response"}
	}
	return &enrich.Credits{FinderCredits: data.Credits, VerifierCredits: data.VerifierCredits}, nil
}

func (f *FindymailClient) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	if f.apiKey == "" {
		return nil, 0, fmt.Errorf("FINDYMAIL_API_KEY not set")
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transient: worth retrying later.
		return nil, 0, &enrich.ProviderError{Provider: f.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, nil
}

// apiError maps a non-200 Findymail response to a transient ProviderError
// with a message worth showing an operator.
func (f *FindymailClient) apiError(status int, raw []byte) error {
	var errBody struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &errBody)
	msg := errBody.Error
	if msg == "" {
		msg = errBody.Message
	}
	if msg == "" {
		switch status {
		case http.StatusBadRequest:
			msg = "Bad Request (check input format)"
		case http.StatusUnauthorized:
			msg = "Unauthorized (check Findymail API key)"
		case http.StatusPaymentRequired: // 402
			msg = "Payment Needed (out of credits)"
		case http.StatusTooManyRequests: // 429
			msg = "Too Many Requests (rate limit exceeded)"
		default:
			msg = fmt.Sprintf("HTTP %d", status)
		}
	}
	return &enrich.ProviderError{Provider: f.Name(), StatusCode: status, Message: msg}
}
