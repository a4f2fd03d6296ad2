package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/coldpath/coldpath-backend/enrich"
	"github.com/coldpath/coldpath-backend/models"
	"github.com/coldpath/coldpath-backend/services"
)

// chargeOrgCredits books provider spend against the calling organization.
// Cache hits cost nothing, so only uncached resolutions ever land here.
func chargeOrgCredits(orgID uint, credits int) {
	if credits == 0 {
		return
	}
	err := services.DB.Model(&models.Organization{}).
		Where("id = ?", orgID).
		UpdateColumn("credits", gorm.Expr("credits - ?", credits)).Error
	if err != nil {
		apiLog.Warn("org credit charge lost", "org_id", orgID, "credits", credits, "err", err)
	}
}

// outcomeStatus maps a resolve outcome to an HTTP status: failures surface
// as 404 (not found) or 502 (provider trouble, retryable).
func outcomeStatus(out *enrich.Outcome) int {
	if out.Kind != enrich.KindProviderFailure {
		return http.StatusOK
	}
	if out.Retryable {
		return http.StatusBadGateway
	}
	return http.StatusNotFound
}

func resolveErrorStatus(err error) int {
	if errors.Is(err, enrich.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func enrichLinkedInHandler(c *gin.Context) {
	userID, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.EnrichLinkedInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "linkedin_url is required"})
		return
	}

	idctx := enrich.IdentityContext{OrgID: orgID, UserID: userID}
	out, err := coordinator.ResolveLinkedIn(c.Request.Context(), idctx, req.LinkedInURL)
	if err != nil {
		c.JSON(resolveErrorStatus(err), gin.H{"error": "Enrichment unavailable, try again later"})
		return
	}
	chargeOrgCredits(orgID, out.CreditsCharged)
	c.JSON(outcomeStatus(out), out)
}

func enrichVerifyHandler(c *gin.Context) {
	userID, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.EnrichVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
		return
	}

	idctx := enrich.IdentityContext{OrgID: orgID, UserID: userID}
	out, err := coordinator.ResolveEmailVerification(c.Request.Context(), idctx, req.Email)
	if err != nil {
		c.JSON(resolveErrorStatus(err), gin.H{"error": "Enrichment unavailable, try again later"})
		return
	}
	chargeOrgCredits(orgID, out.CreditsCharged)
	c.JSON(outcomeStatus(out), out)
}

func enrichLeadHandler(c *gin.Context) {
	lead, ok := orgLead(c)
	if !ok {
		return
	}
	userID, orgID, _ := currentIdentity(c)

	if lead.LinkedInURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Lead has no LinkedIn URL to enrich from"})
		return
	}

	idctx := enrich.IdentityContext{OrgID: orgID, UserID: userID}
	res, err := services.EnrichLeads(c.Request.Context(), coordinator, idctx, []models.Lead{*lead})
	if err != nil {
		c.JSON(resolveErrorStatus(err), gin.H{"error": "Enrichment unavailable, try again later"})
		return
	}
	chargeOrgCredits(orgID, res.CreditsCharged)

	// Re-read for the updated email fields.
	services.DB.First(lead, lead.ID)
	c.JSON(http.StatusOK, gin.H{"lead": lead, "result": res})
}

func bulkEnrichHandler(c *gin.Context) {
	userID, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.BulkEnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.LeadIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead_ids is required"})
		return
	}
	if len(req.LeadIDs) > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At most 200 leads per bulk run"})
		return
	}

	var leads []models.Lead
	if err := services.DB.Where("org_id = ? AND public_id IN ?", orgID, req.LeadIDs).Find(&leads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leads"})
		return
	}
	if len(leads) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No matching leads"})
		return
	}

	idctx := enrich.IdentityContext{OrgID: orgID, UserID: userID}
	res, err := services.EnrichLeads(c.Request.Context(), coordinator, idctx, leads)
	if err != nil {
		c.JSON(resolveErrorStatus(err), gin.H{"error": "Enrichment unavailable, try again later"})
		return
	}
	chargeOrgCredits(orgID, res.CreditsCharged)
	c.JSON(http.StatusOK, res)
}

func enrichCreditsHandler(c *gin.Context) {
	credits, err := coordinator.RemainingCredits(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Provider credits unavailable"})
		return
	}
	c.JSON(http.StatusOK, credits)
}

func enrichmentAnalyticsHandler(c *gin.Context) {
	summary, err := reporter.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
