package vehicle

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// MatchOp 检索条件的匹配方式。
type MatchOp int

const (
	OpEq       MatchOp = iota // 整型列精确匹配
	OpContains                // 文本列不区分大小写子串匹配
)

// Condition 单个检索条件。
type Condition struct {
	Column string
	Op     MatchOp
	Number int64  // OpEq 使用
	Text   string // OpContains 使用（保留原词，匹配时转小写）
}

// FieldSet 检索字段配置。Numeric 是整型列，文本子串匹配对其不可用，
// 因此数字词在这些列上只能精确匹配；Text 列始终走子串匹配。
type FieldSet struct {
	Numeric []string
	Text    []string
}

var (
	// FieldSetIdentifiers 首页搜索框：只按 VIN / 车牌匹配。
	FieldSetIdentifiers = FieldSet{
		Text: []string{"vin", "plates"},
	}

	// FieldSetAll 车辆列表页：全字段匹配。
	FieldSetAll = FieldSet{
		Numeric: []string{"id", "year"},
		Text:    []string{"vin", "model", "make", "plates"},
	}
)

// Predicate 检索谓词：各条件之间 OR 组合。纯数据，不做 I/O。
type Predicate struct {
	Conditions []Condition
}

// BuildPredicate 把用户输入的检索词构造为谓词。
//
// - 空白词（trim 后为空）返回 nil，调用方必须短路为"空结果"，
//   不能退化成无条件全表查询
// - 数字词：整型列精确匹配 + 文本列子串匹配，二者同时生效
// - 非数字词：只在文本列上做子串匹配
func BuildPredicate(term string, fields FieldSet) *Predicate {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	p := &Predicate{}

	if n, err := strconv.ParseInt(term, 10, 64); err == nil {
		for _, col := range fields.Numeric {
			p.Conditions = append(p.Conditions, Condition{Column: col, Op: OpEq, Number: n})
		}
	}
	for _, col := range fields.Text {
		p.Conditions = append(p.Conditions, Condition{Column: col, Op: OpContains, Text: term})
	}

	return p
}

// Apply 把谓词渲染为 OR 组合的 where 片段。
func (p *Predicate) Apply(q *gorm.DB) *gorm.DB {
	if p == nil || len(p.Conditions) == 0 {
		return q
	}

	frags := make([]string, 0, len(p.Conditions))
	args := make([]interface{}, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		switch c.Op {
		case OpEq:
			frags = append(frags, fmt.Sprintf("%s = ?", c.Column))
			args = append(args, c.Number)
		case OpContains:
			frags = append(frags, fmt.Sprintf("LOWER(%s) LIKE ?", c.Column))
			args = append(args, "%"+strings.ToLower(c.Text)+"%")
		}
	}

	return q.Where(strings.Join(frags, " OR "), args...)
}

// MatchesText 判断文本值是否命中某个子串条件（供内存侧过滤/测试使用）。
func (c Condition) MatchesText(value string) bool {
	if c.Op != OpContains {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(c.Text))
}
