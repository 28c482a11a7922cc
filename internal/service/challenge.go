package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parlor/internal/models"
)

// ChallengeVerifier validates the anti-abuse challenge token attached to a
// submission. Verification is skipped entirely when no secret is configured.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token, ip string) error
}

const challengeVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// HTTPChallengeVerifier posts the token to the challenge provider's
// verification endpoint.
type HTTPChallengeVerifier struct {
	settings *ConfigService
	client   *http.Client
	endpoint string
}

// NewHTTPChallengeVerifier creates a verifier with a short-timeout HTTP
// client so a slow provider cannot stall submissions.
func NewHTTPChallengeVerifier(settings *ConfigService) *HTTPChallengeVerifier {
	return &HTTPChallengeVerifier{
		settings: settings,
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: challengeVerifyURL,
	}
}

type challengeResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"error-codes"`
}

func (v *HTTPChallengeVerifier) Verify(ctx context.Context, token, ip string) error {
	secret, err := v.settings.Get(ctx, KeyChallengeSecret)
	if err != nil {
		return err
	}
	if secret == "" {
		return nil
	}
	if token == "" {
		return models.NewValidationError("challenge response required")
	}

	form := url.Values{
		"secret":   {secret},
		"response": {token},
		"remoteip": {ip},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return models.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return models.NewInternalError(err)
	}
	defer resp.Body.Close()

	var result challengeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.NewInternalError(err)
	}
	if !result.Success {
		return models.NewValidationError("challenge verification failed")
	}
	return nil
}
