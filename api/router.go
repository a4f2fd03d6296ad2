package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coldpath/coldpath-backend/enrich"
	"github.com/coldpath/coldpath-backend/logger"
)

// Handlers are package-level and share these; SetupRoutes wires them once at
// startup.
var (
	coordinator *enrich.Coordinator
	reporter    *enrich.Reporter
	apiLog      *logger.Logger
)

func SetupRoutes(r *gin.Engine, coord *enrich.Coordinator, rep *enrich.Reporter, log *logger.Logger) {
	coordinator = coord
	reporter = rep
	apiLog = log.With("component", "api")

	apiGroup := r.Group("/api", BackendKeyMiddleware())
	{
		apiGroup.GET("/health", healthCheck)

		apiGroup.POST("/auth/signup", signupHandler)
		apiGroup.POST("/auth/login", loginHandler)

		authed := apiGroup.Group("", AuthMiddleware())
		{
			authed.GET("/me", getUserMeHandler)

			authed.GET("/campaigns", listCampaignsHandler)
			authed.POST("/campaigns", createCampaignHandler)
			authed.GET("/campaigns/:id", getCampaignHandler)
			authed.PUT("/campaigns/:id", updateCampaignHandler)
			authed.DELETE("/campaigns/:id", deleteCampaignHandler)
			authed.POST("/campaigns/:id/send", sendCampaignHandler)

			authed.GET("/lists", listContactListsHandler)
			authed.POST("/lists", createContactListHandler)

			authed.GET("/leads", listLeadsHandler)
			authed.POST("/leads", createLeadHandler)
			authed.GET("/leads/:id", getLeadHandler)
			authed.DELETE("/leads/:id", deleteLeadHandler)
			authed.POST("/leads/:id/enrich", enrichLeadHandler)
			// Static "import" would collide with the :id wildcard above.
			authed.POST("/import/leads", importLeadsHandler)

			authed.POST("/enrich/linkedin", enrichLinkedInHandler)
			authed.POST("/enrich/verify", enrichVerifyHandler)
			authed.POST("/enrich/bulk", bulkEnrichHandler)
			authed.GET("/enrich/credits", enrichCreditsHandler)

			authed.GET("/analytics/enrichment", enrichmentAnalyticsHandler)

			authed.GET("/gmail/connect", gmailConnectHandler)
			authed.GET("/gmail/callback", gmailCallbackHandler)
			authed.GET("/gmail/accounts", listGmailAccountsHandler)
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
