package api

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// pathID разбирает :id. При ошибке ответ уже отправлен.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// bindOptionalJSON пустое тело допустимо
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "body", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "body", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// queryParser собирает первую ошибку разбора query-параметров
type queryParser struct {
	c     *gin.Context
	field string
	err   error
}

func newQueryParser(c *gin.Context) *queryParser {
	return &queryParser{c: c}
}

func (p *queryParser) fail(field string, err error) {
	if p.err == nil {
		p.field = field
		p.err = err
	}
}

func (p *queryParser) int64Ptr(name string) *int64 {
	raw := p.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(name, fmt.Errorf("%s must be an integer", name))
		return nil
	}
	return &v
}

func (p *queryParser) int64Value(name string) int64 {
	if v := p.int64Ptr(name); v != nil {
		return *v
	}
	return 0
}

func (p *queryParser) int(name string) int {
	raw := p.c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, fmt.Errorf("%s must be an integer", name))
		return 0
	}
	return v
}

func (p *queryParser) timePtr(name string) *time.Time {
	raw := p.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		p.fail(name, fmt.Errorf("%s must be an RFC3339 time", name))
		return nil
	}
	return &v
}

func (p *queryParser) timeValue(name string) time.Time {
	if v := p.timePtr(name); v != nil {
		return *v
	}
	return time.Time{}
}

// list значения из повторяющихся параметров и через запятую: ?status=a,b&status=c
func (p *queryParser) list(name string) []string {
	var out []string
	for _, raw := range p.c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (p *queryParser) weekdays(name string) []time.Weekday {
	var out []time.Weekday
	for _, raw := range p.list(name) {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 6 {
			p.fail(name, fmt.Errorf("%s must be numbers 0 (Sunday) to 6", name))
			return nil
		}
		out = append(out, time.Weekday(v))
	}
	return out
}

// ok отправляет 400, если был сбой разбора
func (p *queryParser) ok() bool {
	if p.err != nil {
		badRequest(p.c, p.field, p.err.Error())
		return false
	}
	return true
}
