package caddy

import (
	"encoding/json"
	"strings"

	"docker-monitor/internal/labels"
)

type handler map[string]interface{}

// Route caddy JSON配置中的一条路由
type Route struct {
	Match  []map[string][]string `json:"match"`
	Handle []handler             `json:"handle"`
}

// 已知的中间件，其余的忽略
var middlewareHandlers = map[string]func() handler{
	"auth": func() handler { return handler{"handler": "authentication"} },
	"compress": func() handler {
		return handler{"handler": "encode", "encodings": map[string]interface{}{"gzip": map[string]interface{}{}}}
	},
	"rate_limit": func() handler { return handler{"handler": "rate_limit"} },
}

/**
 * Build the caddy route for a validated revp declaration
 * @param {labels.ServiceConfig} cfg - Validated properties, defaults filled in
 * @param {string} upstream - host:port dial address
 * @returns {Route} Route ready to POST to the admin API
 * @description
 * - ssl_force with http scheme yields a redirect-only route, no upstream
 * - Middleware handlers run ahead of reverse_proxy
 */
func BuildProxyConfig(cfg labels.ServiceConfig, upstream string) Route {
	domain := cfg["domain"]
	scheme := cfg.Scheme()
	match := map[string][]string{"host": {domain}}
	if path := cfg["path"]; path != "" && path != "/" {
		match["path"] = []string{path + "*"}
	}
	route := Route{Match: []map[string][]string{match}, Handle: []handler{}}

	if cfg.Bool(labels.PropSSLForce) && scheme == "http" {
		route.Handle = append(route.Handle, handler{
			"handler":     "static_response",
			"headers":     map[string][]string{"Location": {"https://" + domain + "{http.request.uri}"}},
			"status_code": 301,
		})
		return route
	}

	if mw := cfg["middleware"]; mw != "" {
		for _, name := range strings.Split(mw, ",") {
			if build, ok := middlewareHandlers[strings.TrimSpace(name)]; ok {
				route.Handle = append(route.Handle, build())
			}
		}
	}

	set := map[string][]string{
		"Host":              {"{http.request.host}"},
		"X-Real-IP":         {"{http.request.remote.host}"},
		"X-Forwarded-For":   {"{http.request.remote}"},
		"X-Forwarded-Proto": {scheme},
	}
	proxy := handler{
		"handler":   "reverse_proxy",
		"upstreams": []map[string]string{{"dial": upstream}},
		"headers":   map[string]interface{}{"request": map[string]interface{}{"set": set}},
	}
	if cfg.Bool("websocket") {
		set["Connection"] = []string{"Upgrade"}
		set["Upgrade"] = []string{"websocket"}
		set["Sec-WebSocket-Protocol"] = []string{"{http.request.header.Sec-WebSocket-Protocol}"}
		set["Sec-WebSocket-Version"] = []string{"{http.request.header.Sec-WebSocket-Version}"}
		proxy["transport"] = map[string]interface{}{"protocol": "http", "versions": []string{"1.1", "2"}}
	}
	route.Handle = append(route.Handle, proxy)
	return route
}

func (r Route) JSON() json.RawMessage {
	data, _ := json.Marshal(r)
	return data
}
