package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coldpath/coldpath-backend/models"
	"github.com/coldpath/coldpath-backend/services"
)

func listLeadsHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	q := services.DB.Where("org_id = ?", orgID)
	if campaignID := c.Query("campaign_id"); campaignID != "" {
		q = q.Where("campaign_id = ?", campaignID)
	}
	if listID := c.Query("contact_list_id"); listID != "" {
		q = q.Where("contact_list_id = ?", listID)
	}
	if search := c.Query("search"); search != "" {
		q = q.Where("name LIKE ? OR company LIKE ? OR email LIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	q.Model(&models.Lead{}).Count(&total)

	var leads []models.Lead
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&leads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads, "total": total})
}

func createLeadHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.LeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead payload"})
		return
	}
	if req.Email == "" && req.LinkedInURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A lead needs an email or a LinkedIn URL"})
		return
	}

	lead := models.Lead{
		PublicID:      uuid.NewString(),
		OrgID:         orgID,
		CampaignID:    req.CampaignID,
		ContactListID: req.ContactListID,
		Name:          req.Name,
		Title:         req.Title,
		Company:       req.Company,
		LinkedInURL:   req.LinkedInURL,
		Email:         req.Email,
		Source:        "manual",
	}
	if lead.Email != "" {
		lead.EmailStatus = "unverified"
	}
	if err := services.DB.Create(&lead).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create lead"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lead": lead})
}

// orgLead loads a lead by public id scoped to the caller's org.
func orgLead(c *gin.Context) (*models.Lead, bool) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	var lead models.Lead
	if err := services.DB.Where("public_id = ? AND org_id = ?", c.Param("id"), orgID).First(&lead).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
		return nil, false
	}
	return &lead, true
}

func getLeadHandler(c *gin.Context) {
	lead, ok := orgLead(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": lead})
}

func deleteLeadHandler(c *gin.Context) {
	lead, ok := orgLead(c)
	if !ok {
		return
	}
	if err := services.DB.Delete(lead).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete lead"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func importLeadsHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upload a CSV as form field 'file'"})
		return
	}
	defer file.Close()

	var campaignID, contactListID *uint
	if v := c.PostForm("campaign_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			u := uint(id)
			campaignID = &u
		}
	}
	if v := c.PostForm("contact_list_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			u := uint(id)
			contactListID = &u
		}
	}

	leads, skipped, err := services.ImportLeadsCSV(orgID, campaignID, contactListID, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(leads), "skipped": skipped})
}
