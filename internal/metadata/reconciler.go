package metadata

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// NormalizedSource 归一化后的引用来源
// 每个检索结果对应一条，字段永远非空
type NormalizedSource struct {
	Source string `json:"source"` // 来源名称
	Page   string `json:"page"`   // 页码（或行号、分块序号等替代值）
}

// sourceResolver 来源名称解析函数
// 返回空字符串表示本规则无法解析，继续尝试下一条
type sourceResolver func(meta map[string]string, position int) string

// Reconciler 来源归一化器
// 将检索返回的原始元数据归一化为完整的来源记录，
// 单条元数据缺失或损坏只影响该条的回退结果，不中断整批处理
type Reconciler struct {
	resolvers []sourceResolver
	logger    *logrus.Logger
}

// NewReconciler 创建来源归一化器
func NewReconciler(logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{
		// 按优先级排列的来源名称解析规则，命中第一个非空值即停止
		resolvers: []sourceResolver{
			fieldResolver(KeySource),
			fieldResolver(KeyTitle),
			fieldResolver(KeyFilepath),
			fieldResolver(KeyAltPath),
			syntheticResolver,
		},
		logger: logger,
	}
}

// Resolve 将原始元数据归一化为来源记录
// position为检索结果中的位置（1起始），用于兜底命名和页码替代
func (r *Reconciler) Resolve(meta map[string]string, position int) NormalizedSource {
	return NormalizedSource{
		Source: r.resolveSource(meta, position),
		Page:   r.resolvePage(meta, position),
	}
}

// ResolveAll 归一化一批检索结果的元数据
// 输入N条元数据必定返回N条来源记录
func (r *Reconciler) ResolveAll(metas []map[string]string) []NormalizedSource {
	sources := make([]NormalizedSource, len(metas))
	for i, meta := range metas {
		sources[i] = r.Resolve(meta, i+1)
	}
	return sources
}

// resolveSource 依次尝试来源名称解析规则
func (r *Reconciler) resolveSource(meta map[string]string, position int) string {
	for _, resolve := range r.resolvers {
		if name := resolve(meta, position); name != "" {
			return name
		}
	}
	// syntheticResolver永远返回非空值，不会走到这里
	return fmt.Sprintf("Document %d", position)
}

// resolvePage 解析页码
// 顺序：显式page字段 > 打包字段中的页码 > 打包字段中的分块序号 > 结果位置
func (r *Reconciler) resolvePage(meta map[string]string, position int) string {
	if page := meta[KeyPage]; page != "" {
		return page
	}

	if raw, ok := meta[KeyTags]; ok {
		tag, err := DecodeChunkTag(raw)
		if err != nil {
			// 单条损坏的打包字段只记日志，继续回退
			r.logger.WithFields(logrus.Fields{
				"position": position,
				"error":    err.Error(),
			}).Warn("Malformed chunk tag in retrieved metadata")
		} else {
			if tag.Page != "" {
				return tag.Page
			}
			if tag.Index > 0 {
				return strconv.Itoa(tag.Index)
			}
		}
	}

	// 最后回退到检索结果的位置
	return strconv.Itoa(position)
}

// fieldResolver 构造按字段名取值的解析规则
func fieldResolver(key string) sourceResolver {
	return func(meta map[string]string, _ int) string {
		return meta[key]
	}
}

// syntheticResolver 兜底规则，按位置合成来源名称
func syntheticResolver(_ map[string]string, position int) string {
	return fmt.Sprintf("Document %d", position)
}
