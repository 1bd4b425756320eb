package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
	"github.com/sshcollectorpro/switchmon/internal/service"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// displayTimeLayout 响应中的时间格式，例如 Monday, March 02, 2026 03:04:05 PM
const displayTimeLayout = "Monday, January 02, 2006 03:04:05 PM"

// Runner 执行一次诊断采集
type Runner interface {
	Run(ctx context.Context, cred model.HostCredential, profile *config.Profile) (*model.RunResult, error)
}

// MonitorHandler 交换机诊断触发处理器
type MonitorHandler struct {
	runner     Runner
	inventory  *config.Inventory
	profiles   config.Profiles
	runTimeout time.Duration
	log        *logrus.Entry
}

// NewMonitorHandler 创建诊断处理器
func NewMonitorHandler(runner Runner, inventory *config.Inventory, profiles config.Profiles, runTimeout time.Duration, log *logrus.Entry) *MonitorHandler {
	return &MonitorHandler{
		runner:     runner,
		inventory:  inventory,
		profiles:   profiles,
		runTimeout: runTimeout,
		log:        logger.Entry(log),
	}
}

// ListHosts 列出清单中的交换机
func (h *MonitorHandler) ListHosts(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取设备列表成功",
		Data:    h.inventory.Hosts(),
	})
}

// RunSystem 执行系统健康命令集，返回各分节内容
func (h *MonitorHandler) RunSystem(c *gin.Context) {
	h.run(c, model.ProfileSystem, func(body gin.H, ip, _ string) {
		body["Switch IP Address"] = ip
	})
}

// RunInterface 执行端口健康命令集，同时返回完整报告文本
func (h *MonitorHandler) RunInterface(c *gin.Context) {
	h.run(c, model.ProfileInterface, func(body gin.H, ip, report string) {
		body["interface_result"] = report
		body["switch_ip"] = ip
	})
}

func (h *MonitorHandler) run(c *gin.Context, profileName string, decorate func(body gin.H, ip, report string)) {
	host := strings.TrimSpace(c.PostForm("selected_host"))
	ip := strings.TrimSpace(c.PostForm("selected_ip"))
	if host == "" || ip == "" {
		h.log.Warn("No switch selected")
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "NO_SWITCH_SELECTED", Message: "No switch selected."})
		return
	}

	profile, err := h.profiles.Get(profileName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "PROFILE_MISSING", Message: err.Error()})
		return
	}
	cred, err := h.inventory.Credential(host)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_HOST", Message: err.Error()})
		return
	}

	h.log.WithFields(logrus.Fields{"host": host, "ip": ip, "profile": profileName}).
		Infof("Running %s script for host: %s, IP: %s", profileName, host, ip)

	ctx := c.Request.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}
	run, err := h.runner.Run(ctx, cred, profile)
	if err != nil && (run == nil || len(run.Results) == 0) {
		code := "RUN_FAILED"
		if service.IsConnectionError(err) {
			code = "CONNECTION_FAILED"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			code = "RUN_TIMEOUT"
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{Code: code, Message: err.Error()})
		return
	}

	report := service.RenderReport(profile.Title, run)
	body := gin.H{}
	for k, v := range service.ParseSections(report, profile.Labels()) {
		body[k] = v
	}
	decorate(body, ip, report)
	body["timestamp"] = time.Now().Format(displayTimeLayout)
	body["run_id"] = run.ID
	body["status"] = run.Status
	if run.ReportURI != "" {
		body["report_uri"] = run.ReportURI
	}
	h.log.WithField("run_id", run.ID).Infof("%s data retrieved", profile.Title)
	c.JSON(http.StatusOK, body)
}

// Reset 前端清空展示数据
func (h *MonitorHandler) Reset(c *gin.Context) {
	h.log.Info("Reset requested")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
