// Package routing はURLパスのプレフィックスからバックエンドサービスを解決するルートテーブルを提供する。
//
// ルートは起動時に一度だけ構築され、以後変更されない。
// 解決は常に最長一致のプレフィックスが優先される。
package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicatePrefix は同じプレフィックスが複数回設定されたことを表す。
	ErrDuplicatePrefix = errors.New("プレフィックスが重複しています")
	// ErrUnknownService はルートが未定義のサービスを参照していることを表す。
	ErrUnknownService = errors.New("未定義のサービスです")
	// ErrInvalidPrefix はプレフィックスの形式が不正であることを表す。
	ErrInvalidPrefix = errors.New("プレフィックスは / で始まる必要があります")
)

// Route はパスプレフィックスとサービス名の対応。
type Route struct {
	// Prefix はパスのプレフィックス（例: "/orders"）。
	Prefix string `yaml:"prefix" json:"prefix"`
	// Service は転送先のサービス名。
	Service string `yaml:"service" json:"service"`
}

// ServiceEndpoint はバックエンドサービスの名前とベースURL。
type ServiceEndpoint struct {
	// Name はサービス名。
	Name string `json:"service"`
	// BaseURL はサービスのベースURL（末尾の / は除去済み）。
	BaseURL string `json:"url"`
}

// Table は不変のルートテーブル。
type Table struct {
	// routes はプレフィックス長の降順に並べたルート。
	routes []Route
	// endpoints はサービス名からエンドポイントへの対応。
	endpoints map[string]ServiceEndpoint
}

// NewTable はルート定義とサービスURLからルートテーブルを生成する。
// servicesはサービス名からベースURLへの対応。
func NewTable(routes []Route, services map[string]string) (*Table, error) {
	endpoints := make(map[string]ServiceEndpoint, len(services))
	for name, baseURL := range services {
		if baseURL == "" {
			return nil, fmt.Errorf("サービス %s のURLが空です", name)
		}
		endpoints[name] = ServiceEndpoint{Name: name, BaseURL: strings.TrimRight(baseURL, "/")}
	}

	seen := make(map[string]struct{}, len(routes))
	sorted := make([]Route, 0, len(routes))
	for _, r := range routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, r.Prefix)
		}
		if _, dup := seen[r.Prefix]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrefix, r.Prefix)
		}
		if _, ok := endpoints[r.Service]; !ok {
			return nil, fmt.Errorf("%w: %s (prefix=%s)", ErrUnknownService, r.Service, r.Prefix)
		}
		seen[r.Prefix] = struct{}{}
		sorted = append(sorted, r)
	}

	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].Prefix) != len(sorted[j].Prefix) {
			return len(sorted[i].Prefix) > len(sorted[j].Prefix)
		}
		return sorted[i].Prefix < sorted[j].Prefix
	})

	return &Table{routes: sorted, endpoints: endpoints}, nil
}

// Resolve はパスに最長一致するルートのサービスエンドポイントを返す。
// 一致するルートがない場合はfalseを返す。
func (t *Table) Resolve(path string) (ServiceEndpoint, bool) {
	for _, r := range t.routes {
		if strings.HasPrefix(path, r.Prefix) {
			return t.endpoints[r.Service], true
		}
	}
	return ServiceEndpoint{}, false
}

// Endpoint はサービス名からエンドポイントを返す。
func (t *Table) Endpoint(name string) (ServiceEndpoint, bool) {
	ep, ok := t.endpoints[name]
	return ep, ok
}

// Routes はプレフィックスの辞書順に並べたルートのコピーを返す。
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Endpoints はサービス名の辞書順に並べたエンドポイントを返す。
func (t *Table) Endpoints() []ServiceEndpoint {
	out := make([]ServiceEndpoint, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
