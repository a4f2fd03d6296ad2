package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/coldpath/coldpath-backend/models"
	"github.com/coldpath/coldpath-backend/services"
)

// gmailConnectHandler hands the frontend a Google consent URL. The user/org
// pair rides along in the state parameter and is re-checked on callback.
func gmailConnectHandler(c *gin.Context) {
	userID, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	state := strconv.FormatUint(uint64(orgID), 10) + ":" + strconv.FormatUint(uint64(userID), 10)
	url := services.GoogleOAuthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

func gmailCallbackHandler(c *gin.Context) {
	userID, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	acct, err := services.ExchangeGmailCode(c.Request.Context(), orgID, userID, code)
	if err != nil {
		apiLog.Warn("gmail connect failed", "org_id", orgID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Google authorization failed"})
		return
	}

	// Reconnecting the same mailbox refreshes its tokens in place.
	var existing models.GmailAccount
	if err := services.DB.Where("email = ?", acct.Email).First(&existing).Error; err == nil {
		existing.AccessToken = acct.AccessToken
		if acct.RefreshToken != "" {
			existing.RefreshToken = acct.RefreshToken
		}
		existing.TokenExpiry = acct.TokenExpiry
		if err := services.DB.Save(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update Gmail account"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": existing.Email, "status": "reconnected"})
		return
	}

	if err := services.DB.Create(acct).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save Gmail account"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"email": acct.Email, "status": "connected"})
}

func listGmailAccountsHandler(c *gin.Context) {
	_, orgID, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var accounts []models.GmailAccount
	if err := services.DB.Where("org_id = ?", orgID).Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load Gmail accounts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}
