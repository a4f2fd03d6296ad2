package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/coldpath/coldpath-backend/enrich"
	"github.com/coldpath/coldpath-backend/models"
)

// BulkEnrichResult summarises one bulk run over a set of leads.
type BulkEnrichResult struct {
	Resolved       int `json:"resolved"`
	CacheHits      int `json:"cache_hits"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
	CreditsCharged int `json:"credits_charged"`
}

// EnrichLeads resolves emails for leads that carry a LinkedIn URL but no
// address yet, with bounded concurrency. Lookups for distinct identities run
// in parallel; the coordinator's per-identity lock handles any duplicates in
// the batch, so two rows pointing at the same profile still cost one credit.
func EnrichLeads(ctx context.Context, coord *enrich.Coordinator, idctx enrich.IdentityContext, leads []models.Lead) (*BulkEnrichResult, error) {
	res := &BulkEnrichResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	outcomes := make([]*enrich.Outcome, len(leads))

	for i := range leads {
		lead := leads[i]
		if lead.Email != "" || lead.LinkedInURL == "" {
			res.Skipped++
			continue
		}
		idx := i
		g.Go(func() error {
			out, err := coord.ResolveLinkedIn(gctx, idctx, lead.LinkedInURL)
			if err != nil {
				return err
			}
			outcomes[idx] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, out := range outcomes {
		if out == nil {
			continue
		}
		res.CreditsCharged += out.CreditsCharged
		switch out.Kind {
		case enrich.KindProviderFailure:
			res.Failed++
			continue
		case enrich.KindCacheHit:
			res.CacheHits++
		}
		res.Resolved++

		update := map[string]interface{}{
			"email":        out.Result.Email,
			"email_status": out.Result.VerificationStatus,
			"source":       "enrichment",
		}
		if out.Result.Name != "" && leads[i].Name == "" {
			update["name"] = out.Result.Name
		}
		if err := DB.Model(&models.Lead{}).Where("id = ?", leads[i].ID).Updates(update).Error; err != nil {
			return res, err
		}
	}
	return res, nil
}
