package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"time"
)

// HTTPRoundTripper 将请求重写到测试服务器
// hosts 为空时重写全部请求，否则只重写列出的主机
type HTTPRoundTripper struct {
	base  *url.URL
	next  http.RoundTripper
	hosts []string
}

// RoundTrip 实现 http.RoundTripper 接口
func (t *HTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.hosts) == 0 || slices.Contains(t.hosts, req.URL.Host) {
		cloned := req.Clone(req.Context())
		cloned.URL.Scheme = t.base.Scheme
		cloned.URL.Host = t.base.Host
		cloned.Host = t.base.Host
		req = cloned
	}
	return t.next.RoundTrip(req)
}

// NewTestClient 创建将请求重定向到测试服务器的客户端
func NewTestClient(ts *httptest.Server, hosts ...string) *http.Client {
	u, _ := url.Parse(ts.URL)
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &HTTPRoundTripper{
			base:  u,
			next:  http.DefaultTransport,
			hosts: hosts,
		},
	}
}
