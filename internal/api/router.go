package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/registry"
)

// SetupRoutes wires the command-verb table of §6.1 onto router, plus the
// run-events WebSocket upgrade of §6.2.
func SetupRoutes(router *gin.RouterGroup, reg *registry.Registry, az *analyzer.Analyzer, workingDir string, log *logger.Logger) {
	handler := NewHandler(reg, az, workingDir, log)
	streamHandler := NewStreamHandler(reg, log)

	runs := router.Group("/runs")
	{
		runs.POST("/competition", handler.ExecuteCompetition)
		runs.POST("/ensemble", handler.ExecuteEnsemble)
		runs.POST("/debate", handler.ExecuteDebate)

		run := runs.Group("/:runId")
		{
			run.GET("/status", handler.GetStatus)
			run.GET("/progress", handler.GetProgress)
			run.POST("/cancel", handler.Cancel)
			run.GET("/events", streamHandler.StreamRun)
		}
	}

	analyzerGroup := router.Group("/analyzer")
	{
		analyzerGroup.POST("/optimize", handler.OptimizeTask)
		analyzerGroup.POST("/instances", handler.CalculateInstances)
		analyzerGroup.GET("/complexity/:class", handler.GetComplexityInfo)
	}

	router.GET("/workspace", handler.GetWorkspace)
}
