package service

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchmon/internal/config"
	"github.com/sshcollectorpro/switchmon/internal/model"
	"github.com/sshcollectorpro/switchmon/internal/util"
	"github.com/sshcollectorpro/switchmon/pkg/logger"
)

// NoDataFound 报告中缺失分节时的占位内容
const NoDataFound = "No data found"

// ReportFileName 生成 <prefix>_YYYYMMDD_HHMMSS.txt
func ReportFileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.txt", prefix, t.Format("20060102_150405"))
}

// RenderReport 将一次运行渲染为纯文本报告：标题、等号下划线，然后按命令顺序输出各分节
func RenderReport(title string, run *model.RunResult) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteString("\n\n")
	for _, r := range run.Results {
		fmt.Fprintf(&b, "\n=== %s ===\n", r.Label)
		for _, line := range sectionLines(r) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func sectionLines(r model.CommandResult) []string {
	text := r.RawOutput
	if text == "" && r.Error != "" {
		text = "Error: " + r.Error
	}
	text = strings.ReplaceAll(util.EnsureUTF8(text), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// ParseSections 从报告文本中按标题提取分节内容，未找到时为 NoDataFound
func ParseSections(report string, titles []string) map[string]string {
	out := make(map[string]string, len(titles))
	for _, title := range titles {
		re := regexp.MustCompile(`(?s)=== ` + regexp.QuoteMeta(title) + ` ===(.*?)(?:\n===|$)`)
		m := re.FindStringSubmatch(report)
		if m == nil {
			out[title] = NoDataFound
			continue
		}
		out[title] = strings.TrimSpace(m[1])
	}
	return out
}

// WriteSection 在控制台回显一个分节
func WriteSection(w io.Writer, label, output string) {
	fmt.Fprintf(w, "\n=== %s ===\n%s\n", label, strings.TrimRight(output, "\r\n"))
}

// ReportService 渲染并保存运行报告
type ReportService struct {
	writer  StorageWriter
	backend string
	log     *logrus.Entry
}

// NewReportService 创建报告服务
func NewReportService(cfg *config.Config, writer StorageWriter, log *logrus.Entry) *ReportService {
	log = logger.Entry(log)
	if writer == nil {
		writer = NewStorageWriter(cfg, log)
	}
	return &ReportService{writer: writer, backend: cfg.Report.Backend, log: log}
}

// Save 渲染运行报告并写入存储；写入回退到本地时仍返回对象并记录告警
func (s *ReportService) Save(ctx context.Context, profile *config.Profile, run *model.RunResult) (StoredObject, error) {
	content := RenderReport(profile.Title, run)
	meta := StorageMeta{
		Host:     run.Address,
		FileName: ReportFileName(profile.FilePrefix, run.StartedAt),
		Backend:  s.backend,
	}
	obj, err := s.writer.Write(ctx, meta, content)
	if err != nil && obj.URI == "" {
		return StoredObject{}, err
	}
	if err != nil {
		s.log.WithError(err).Warn("Report stored with fallback")
	}
	s.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"uri":    obj.URI,
		"size":   obj.Size,
	}).Infof("Switch information saved to %s", obj.URI)
	return obj, nil
}
