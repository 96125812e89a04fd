package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"pack-battle-system/services"
)

// confirmedPurchase is a settled coin purchase reported by the payment
// provider's reconciliation endpoint.
type confirmedPurchase struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	CoinAmount int64     `json:"coin_amount"`
	SettledAt  time.Time `json:"settled_at"`
}

// PaymentPoller reconciles coin purchases against the payment provider.
// Webhooks are the primary delivery path; the poller picks up anything a
// dropped webhook missed. Both paths funnel through ProcessPaymentEvent,
// so replays are harmless.
type PaymentPoller struct {
	BaseURL    string
	Provider   string
	Token      string
	HTTPClient *http.Client
	Wallets    *services.WalletService
}

func NewPaymentPoller(wallets *services.WalletService) *PaymentPoller {
	baseURL := os.Getenv("PAYMENT_PROVIDER_URL")
	if baseURL == "" {
		log.Fatal("PAYMENT_PROVIDER_URL environment variable is required")
	}
	token := os.Getenv("PAYMENT_PROVIDER_TOKEN")
	if token == "" {
		log.Fatal("PAYMENT_PROVIDER_TOKEN environment variable is required for payment polling")
	}
	provider := os.Getenv("PAYMENT_PROVIDER_NAME")
	if provider == "" {
		provider = "primary"
	}

	return &PaymentPoller{
		BaseURL:  baseURL,
		Provider: provider,
		Token:    token,
		Wallets:  wallets,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *PaymentPoller) fetchConfirmed(ctx context.Context, since time.Time) ([]confirmedPurchase, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/purchases/confirmed", p.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Purchases []confirmedPurchase `json:"purchases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	return response.Purchases, nil
}

// Run polls until ctx is cancelled. The since cursor only advances after a
// fully successful batch, so a failed tick retries the same window.
func (p *PaymentPoller) Run(ctx context.Context, pollInterval time.Duration) {
	log.Println("Starting payment reconciliation poller")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Payment poller stopped.")
			return
		case <-ticker.C:
			tickStart := time.Now().UTC()

			purchases, err := p.fetchConfirmed(ctx, lastSyncTime)
			if err != nil {
				log.Printf("[payments] error polling provider: %v", err)
				continue
			}

			if len(purchases) == 0 {
				lastSyncTime = tickStart
				continue
			}

			var credited, replayed, failed int
			for _, purchase := range purchases {
				fresh, err := p.Wallets.ProcessPaymentEvent(p.Provider, purchase.EventID, purchase.UserID, purchase.CoinAmount)
				if err != nil {
					failed++
					log.Printf("[payments] failed to credit event %s for user %s: %v", purchase.EventID, purchase.UserID, err)
					continue
				}
				if fresh {
					credited++
				} else {
					replayed++
				}
			}

			log.Printf("[payments] reconciled %d purchase(s): %d credited, %d already seen, %d errors",
				len(purchases), credited, replayed, failed)

			if failed > 0 {
				continue
			}
			lastSyncTime = tickStart
		}
	}
}
