package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/switchmon/internal/database"
	"github.com/sshcollectorpro/switchmon/internal/model"
)

// RunReader 运行历史查询
type RunReader interface {
	ListRuns(ctx context.Context, address string, limit int) ([]model.RunResult, error)
	GetRun(ctx context.Context, id string) (*model.RunResult, error)
	Health() error
}

// RunsHandler 运行历史处理器
type RunsHandler struct {
	store RunReader
}

func NewRunsHandler(store RunReader) *RunsHandler { return &RunsHandler{store: store} }

// ListRuns 按开始时间倒序列出运行记录，可按地址过滤
func (h *RunsHandler) ListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "HISTORY_DISABLED", Message: "运行历史未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.store.ListRuns(c.Request.Context(), c.Query("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取运行记录成功", Data: runs})
}

// GetRun 读取单次运行及全部命令结果
func (h *RunsHandler) GetRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "HISTORY_DISABLED", Message: "运行历史未启用"})
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "RUN_NOT_FOUND", Message: "运行记录不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "获取运行记录成功", Data: run})
}

// Health 健康检查
func (h *RunsHandler) Health(c *gin.Context) {
	data := gin.H{"status": "running", "history": "disabled"}
	if h.store != nil {
		if err := h.store.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "数据库不可用: " + err.Error()})
			return
		}
		data["history"] = "ok"
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "服务正常", Data: data})
}
