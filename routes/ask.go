package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
	"multimodal-rag-platform/services"
	"multimodal-rag-platform/utils"
)

// RegisterAskRoutes wires the retrieval endpoint.
func RegisterAskRoutes(router *gin.Engine, retrieval *services.RetrievalService) {
	router.GET("/ask", handleAsk(retrieval))
}

// handleAsk answers GET /ask?query=&user_id=&chatbot_id=&include_images=.
// include_images defaults to true.
func handleAsk(retrieval *services.RetrievalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("query"))
		userID := strings.TrimSpace(c.Query("user_id"))
		chatbotID := strings.TrimSpace(c.Query("chatbot_id"))

		if query == "" {
			utils.RespondWithBadRequest(c, "The 'query' parameter is required", nil)
			return
		}
		if userID == "" || chatbotID == "" {
			utils.RespondWithBadRequest(c, "The 'user_id' and 'chatbot_id' parameters are required", nil)
			return
		}

		includeImages := true
		if raw := c.Query("include_images"); raw != "" {
			includeImages = raw != "false" && raw != "0"
		}

		tenant := models.Tenant{UserID: userID, ChatbotID: chatbotID}
		answer, err := retrieval.Ask(c.Request.Context(), query, tenant, includeImages)
		if err != nil {
			logger.Error("ask failed",
				"user_id", userID, "chatbot_id", chatbotID, "error", err)
			utils.RespondWithInternalError(c, "Failed to answer query", err.Error())
			return
		}

		c.JSON(http.StatusOK, answer)
	}
}
