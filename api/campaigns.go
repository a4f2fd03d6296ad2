package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coldpath/coldpath-backend/models"
	"github.com/coldpath/coldpath-backend/services"
)

func listCampaignsHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var campaigns []models.Campaign
	if err := services.DB.Where("org_id = ?", orgID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load campaigns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func createCampaignHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Campaign name is required"})
		return
	}

	campaign := models.Campaign{
		PublicID: uuid.NewString(),
		OrgID:    orgID,
		Name:     req.Name,
		Subject:  req.Subject,
		Body:     req.Body,
	}
	if err := services.DB.Create(&campaign).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create campaign"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

// orgCampaign loads a campaign by public id scoped to the caller's org.
func orgCampaign(c *gin.Context) (*models.Campaign, bool) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	var campaign models.Campaign
	if err := services.DB.Where("public_id = ? AND org_id = ?", c.Param("id"), orgID).First(&campaign).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return nil, false
	}
	return &campaign, true
}

func getCampaignHandler(c *gin.Context) {
	campaign, ok := orgCampaign(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func updateCampaignHandler(c *gin.Context) {
	campaign, ok := orgCampaign(c)
	if !ok {
		return
	}

	var req models.CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Campaign name is required"})
		return
	}

	updates := map[string]interface{}{"name": req.Name, "subject": req.Subject, "body": req.Body}
	if err := services.DB.Model(campaign).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update campaign"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func deleteCampaignHandler(c *gin.Context) {
	campaign, ok := orgCampaign(c)
	if !ok {
		return
	}
	if err := services.DB.Delete(campaign).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete campaign"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func listContactListsHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var lists []models.ContactList
	if err := services.DB.Where("org_id = ?", orgID).Order("name ASC").Find(&lists).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load lists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": lists})
}

func createContactListHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req models.ContactListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "List name is required"})
		return
	}
	list := models.ContactList{OrgID: orgID, Name: req.Name}
	if err := services.DB.Create(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create list"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"list": list})
}

func sendCampaignHandler(c *gin.Context) {
	campaign, ok := orgCampaign(c)
	if !ok {
		return
	}

	var req models.SendCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "gmail_account_id is required"})
		return
	}

	var acct models.GmailAccount
	if err := services.DB.Where("id = ? AND org_id = ?", req.GmailAccountID, campaign.OrgID).First(&acct).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Gmail account not connected"})
		return
	}

	leadQuery := services.DB.Where("org_id = ? AND campaign_id = ? AND email != ''", campaign.OrgID, campaign.ID)
	if len(req.LeadIDs) > 0 {
		leadQuery = leadQuery.Where("public_id IN ?", req.LeadIDs)
	}
	var leads []models.Lead
	if err := leadQuery.Find(&leads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leads"})
		return
	}
	if len(leads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No sendable leads (missing emails?)"})
		return
	}

	sent, failed := 0, 0
	for _, lead := range leads {
		entry := models.SendLog{
			OrgID:      campaign.OrgID,
			CampaignID: campaign.ID,
			LeadID:     lead.ID,
			FromEmail:  acct.Email,
			ToEmail:    lead.Email,
		}
		msgID, err := services.SendGmail(c.Request.Context(), &acct, lead.Email, campaign.Subject, campaign.Body)
		if err != nil {
			failed++
			entry.Status = "failed"
			entry.Error = err.Error()
			apiLog.Warn("campaign send failed", "campaign", campaign.PublicID, "to", lead.Email, "err", err)
		} else {
			sent++
			entry.Status = "sent"
			entry.MessageID = msgID
		}
		services.DB.Create(&entry)
	}

	services.DB.Model(campaign).Update("status", "active")
	c.JSON(http.StatusOK, gin.H{"sent": sent, "failed": failed})
}
