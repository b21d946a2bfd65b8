package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shoppulse/internal/metrics"
	"shoppulse/pkg/shopify"
)

const defaultRegisterTimeout = 10 * time.Second

type TopicResult struct {
	Topic   string
	Address string
	// Existing is set when the subscription was already present.
	Existing bool
	Err      error
}

type RegistrationReport struct {
	Shop    string
	Skipped bool
	Results []TopicResult
}

func (r RegistrationReport) Failed() []TopicResult {
	var out []TopicResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Registrar subscribes a freshly authenticated shop to the fixed topic list.
// Topics are registered concurrently; one topic failing never stops the others.
type Registrar struct {
	Creator shopify.WebhookCreator
	// BaseURL is the public origin webhooks are delivered to. Registration is skipped when empty.
	BaseURL string
	Timeout time.Duration
	Metrics *metrics.Metrics
}

func (r *Registrar) Register(ctx context.Context, shopDomain, accessToken string) RegistrationReport {
	log := zerolog.Ctx(ctx)
	report := RegistrationReport{Shop: shopDomain}

	base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if base == "" || r.Creator == nil {
		report.Skipped = true
		log.Warn().Str("shop", shopDomain).Msg("webhook registration skipped: no public base url")
		return report
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRegisterTimeout
	}

	report.Results = make([]TopicResult, len(Topics))
	var g errgroup.Group
	for i, topic := range Topics {
		i, topic := i, topic
		address := base + Path(topic)
		report.Results[i] = TopicResult{Topic: topic, Address: address}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := r.Creator.CreateWebhook(callCtx, shopDomain, accessToken, topic, address)
			switch {
			case errors.Is(err, shopify.ErrWebhookExists):
				report.Results[i].Existing = true
				r.Metrics.Registration(topic, "existing")
			case err != nil:
				report.Results[i].Err = err
				r.Metrics.Registration(topic, "failed")
				log.Error().Err(err).Str("shop", shopDomain).Str("topic", topic).Msg("webhook registration failed")
			default:
				r.Metrics.Registration(topic, "created")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := len(report.Failed())
	log.Info().Str("shop", shopDomain).
		Int("registered", len(Topics)-failed).
		Int("failed", failed).
		Msg("webhook registration finished")
	return report
}
