package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/newsdeck/app/database"
	"github.com/lysyi3m/newsdeck/app/source"
)

func NewHandler(registry *source.Registry, storyRepo database.StoryRepository,
	refresher Refresher, httpClient *http.Client, userAgent, version string) *Handler {
	return &Handler{
		registry:   registry,
		storyRepo:  storyRepo,
		refresher:  refresher,
		httpClient: httpClient,
		userAgent:  userAgent,
		version:    version,
	}
}

func (h *Handler) GetStories(c *gin.Context) {
	stories, err := h.storyRepo.GetAll()
	if err != nil {
		slog.Error("Database error", "operation", "get_stories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]gin.H, 0, len(stories))
	for _, s := range stories {
		item := gin.H{
			"title": s.Title,
			"body":  s.Body,
			"link":  s.Link,
		}
		if s.ImageURL != "" {
			item["image_url"] = s.ImageURL
		}
		if s.SourceLabel != "" {
			item["source"] = s.SourceLabel
		}
		list = append(list, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"stories": list,
		"total":   len(list),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.storyRepo.GetStoryCount(); err == nil {
		health["stories"] = count
	}

	health["loaded_sources"] = h.registry.GetSourceCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"version":         h.version,
		"sources":         h.registry.GetSourceCount(),
		"enabled_sources": len(h.registry.GetEnabled()),
	}

	if count, err := h.storyRepo.GetStoryCount(); err == nil {
		stats["stories"] = count
	}

	runID, completedAt := h.refresher.LastRun()
	if runID != "" {
		stats["last_run_id"] = runID
	}
	if completedAt != nil {
		stats["last_run_completed_at"] = completedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListSources(c *gin.Context) {
	sources := h.registry.GetAll()

	list := make([]gin.H, 0, len(sources))
	for _, src := range sources {
		list = append(list, gin.H{
			"name":    src.Name,
			"url":     src.URL,
			"label":   src.Label,
			"enabled": src.Enabled,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": list,
		"total":   len(list),
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	runID := h.refresher.TriggerRefresh()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"run_id":  runID,
	})
}

func (h *Handler) APIProbeSource(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	src, err := h.registry.GetSource(name)
	if err != nil {
		slog.Error("Source not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	info, err := source.Probe(c.Request.Context(), h.httpClient, h.userAgent, src.URL)
	if err != nil {
		slog.Error("Source probe failed", "source", name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Source probe failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"url":         src.URL,
		"title":       info.Title,
		"description": info.Description,
		"image_url":   info.ImageURL,
		"item_count":  info.ItemCount,
	})
}
