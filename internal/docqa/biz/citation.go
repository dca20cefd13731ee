package biz

import (
	"sort"
	"strings"

	"github.com/asakusa/enterprise-rag/internal/docqa/store"
)

// ExtractCitations 返回响应中引用的来源文件名，去重并排序。
// 缺失的引用组、引用、位置或空 URI 会被跳过。
func ExtractCitations(resp *store.GenerateResponse) []string {
	citations := []string{}
	if resp == nil {
		return citations
	}

	seen := make(map[string]struct{})
	for _, group := range resp.Citations {
		if group == nil {
			continue
		}
		for _, ref := range group.References {
			if ref == nil {
				continue
			}
			name := sourceName(ref.Location.URI())
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			citations = append(citations, name)
		}
	}

	sort.Strings(citations)
	return citations
}

// sourceName 取 URI 的最后一段路径作为来源标识。
func sourceName(uri string) string {
	uri = strings.TrimSpace(uri)
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.TrimRight(uri, "/")
	if uri == "" {
		return ""
	}
	if i := strings.Index(uri, "://"); i >= 0 && !strings.Contains(uri[i+3:], "/") {
		// 只有 scheme 和 host/bucket，没有对象路径
		return ""
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
