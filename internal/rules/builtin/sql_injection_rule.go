package builtin

import (
	"context"

	"threat-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// Matched as plain lower-case substrings against the payload text.
var sqlPatterns = []string{
	"union select",
	"drop table",
	"insert into",
	"delete from",
	"1=1",
	"or 1=1",
	"--",
	"exec(",
	"execute(",
	"xp_cmdshell",
}

var sqlInjectionInfo = ruleInfo{
	name:           SQLInjectionName,
	threatType:     "SQL Injection Attempt",
	description:    "Malicious SQL patterns detected in request",
	recommendation: "Block request and audit application for SQL injection vulnerabilities",
}

type SQLInjectionRule struct {
	enabled bool
	logger  *logrus.Logger
}

func NewSQLInjectionRule(enabled bool, logger *logrus.Logger) *SQLInjectionRule {
	return &SQLInjectionRule{
		enabled: enabled,
		logger:  logger,
	}
}

func (r *SQLInjectionRule) Name() string {
	return sqlInjectionInfo.name
}

func (r *SQLInjectionRule) IsEnabled() bool {
	return r.enabled
}

func (r *SQLInjectionRule) Evaluate(ctx context.Context, ev *model.Event) *model.RuleMatch {
	if !r.enabled || ev == nil {
		return nil
	}

	if pattern, ok := firstPattern(ev.PayloadText(), sqlPatterns); ok {
		r.logger.Warnf("[SQL Injection] pattern %q in payload from %s", pattern, ev.SourceAddr)
		return sqlInjectionInfo.match()
	}
	return nil
}
