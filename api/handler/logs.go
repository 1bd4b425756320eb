package handler

import (
	"bufio"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/util"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// LogsHandler 诊断日志查询处理器
type LogsHandler struct {
	path string
	log  *logrus.Entry
}

func NewLogsHandler(path string, log *logrus.Entry) *LogsHandler {
	return &LogsHandler{path: strings.TrimSpace(path), log: logger.Entry(log)}
}

// TailLogs 简易日志Tail查询（按关键字、级别过滤，返回末尾N行）
func (h *LogsHandler) TailLogs(c *gin.Context) {
	if h.path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "LOG_PATH_EMPTY", Message: "日志路径未配置"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 || limit > 1000 { // 安全边界
		limit = 200
	}
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	lvl := strings.ToLower(strings.TrimSpace(c.Query("level")))

	lines, err := readAllLines(h.path)
	if err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "READ_FAILED", Message: "读取日志失败: " + err.Error()})
		return
	}

	filtered := make([]string, 0, len(lines))
	for _, ln := range lines {
		lc := strings.ToLower(ln)
		if q != "" && !strings.Contains(lc, q) {
			continue
		}
		// 适配 json/text 两种格式
		if lvl != "" && !strings.Contains(lc, `"level":"`+lvl+`"`) && !strings.Contains(lc, "level="+lvl) {
			continue
		}
		filtered = append(filtered, ln)
	}

	start := 0
	if len(filtered) > limit {
		start = len(filtered) - limit
	}
	tail := filtered[start:]

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "获取日志成功",
		Data: gin.H{
			"path":  h.path,
			"count": len(tail),
			"lines": tail,
		},
	})
}

// ClearLogs 清空诊断日志文件
func (h *LogsHandler) ClearLogs(c *gin.Context) {
	if err := logger.ClearFile(h.path); err != nil {
		h.log.WithError(err).Errorf("Failed to clear %s", h.path)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "CLEAR_FAILED", Message: err.Error()})
		return
	}
	h.log.Infof("%s cleared", h.path)
	c.JSON(http.StatusOK, gin.H{"status": "logs cleared"})
}

// readAllLines 读取全部日志行，设备输出可能混入非 UTF-8 字节
func readAllLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line
	res := make([]string, 0, 1024)
	for s.Scan() {
		res = append(res, util.EnsureUTF8Bytes(s.Bytes()))
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
