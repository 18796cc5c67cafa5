package labels

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	ServiceReverseProxy = "revp"

	// ssl_force没有静态默认值，由scheme推导
	PropSSLForce = "ssl_force"
)

var ErrUnsupportedService = errors.New("unsupported service type")

// Validator 校验单个属性值
type Validator func(value string) bool

/**
 * ServiceSchema 一种服务类型的标签约定
 * @property {string} name - 服务类型名，即标签中的服务段
 * @property {string} description - 说明
 * @property {[]string} required - 必填属性
 * @property {map[string]string} optional - 可选属性及默认值
 * @property {map[string]Validator} validators - 属性校验
 * @property {bool} implemented - 未实现的类型只用于提示，校验时被拒绝
 */
type ServiceSchema struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Required    []string             `json:"required"`
	Optional    map[string]string    `json:"optional"`
	Validators  map[string]Validator `json:"-"`
	Implemented bool                 `json:"implemented"`
	Examples    map[string]string    `json:"examples,omitempty"`
}

func isPort(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 1 && n <= 65535
}

func oneOf(values ...string) Validator {
	return func(v string) bool {
		for _, allowed := range values {
			if strings.EqualFold(v, allowed) {
				return true
			}
		}
		return false
	}
}

func isPath(v string) bool {
	return strings.HasPrefix(v, "/")
}

var reverseProxySchema = &ServiceSchema{
	Name:        ServiceReverseProxy,
	Description: "Reverse Proxy Service (Caddy HTTP/HTTPS)",
	Required:    []string{"domain", "port"},
	Optional: map[string]string{
		"path":       "/",
		"scheme":     "http",
		"websocket":  "false",
		PropSSLForce: "",
		"middleware": "",
		"headers":    "",
	},
	Validators: map[string]Validator{
		"port":       isPort,
		"scheme":     oneOf("http", "https"),
		"websocket":  oneOf("true", "false"),
		PropSSLForce: oneOf("true", "false"),
		"path":       isPath,
	},
	Implemented: true,
	Examples: map[string]string{
		"snadboy.revp.domain": "app.example.com",
		"snadboy.revp.port":   "80",
		"snadboy.revp.path":   "/",
	},
}

// 已规划但未实现的服务类型
func planned(name, description string, example map[string]string) *ServiceSchema {
	return &ServiceSchema{Name: name, Description: description, Examples: example}
}

// Registry 服务类型注册表
type Registry struct {
	schemas map[string]*ServiceSchema
}

func NewRegistry(schemas ...*ServiceSchema) *Registry {
	r := &Registry{schemas: make(map[string]*ServiceSchema)}
	for _, s := range schemas {
		r.schemas[strings.ToLower(s.Name)] = s
	}
	return r
}

// DefaultRegistry revp已实现，其余为规划中的类型
func DefaultRegistry() *Registry {
	return NewRegistry(
		reverseProxySchema,
		planned("api", "API Service (Planned)", map[string]string{"snadboy.api.domain": "api.example.com", "snadboy.api.port": "8080"}),
		planned("web", "Web Application Service (Planned)", map[string]string{"snadboy.web.domain": "myapp.example.com", "snadboy.web.port": "80"}),
		planned("db", "Database Service (Planned)", map[string]string{"snadboy.db.domain": "db.example.com", "snadboy.db.port": "5432"}),
		planned("metrics", "Metrics Service (Planned)", map[string]string{"snadboy.metrics.domain": "metrics.example.com", "snadboy.metrics.port": "9090"}),
	)
}

func (r *Registry) Get(name string) (*ServiceSchema, bool) {
	s, ok := r.schemas[strings.ToLower(name)]
	return s, ok
}

// Supported 已实现的服务类型，按名字排序
func (r *Registry) Supported() []string {
	var names []string
	for name, s := range r.schemas {
		if s.Implemented {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Schemas 全部服务类型，按名字排序
func (r *Registry) Schemas() []*ServiceSchema {
	out := make([]*ServiceSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

/**
 * ValidationError 一个服务声明未通过校验
 * @property {string} service - 服务名
 * @property {bool} unsupported - 服务类型不存在或尚未实现
 * @property {[]string} missing - 缺少的必填属性
 * @property {[]string} violations - 校验失败的属性
 * @property {[]string} supported - 支持的服务类型
 */
type ValidationError struct {
	Service     string
	Unsupported bool
	Missing     []string
	Violations  []string
	Supported   []string
	Available   []string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Unsupported:
		return fmt.Sprintf("Unsupported service type '%s'. Supported types: %v. Available properties: %v",
			e.Service, e.Supported, e.Available)
	case len(e.Missing) > 0:
		return fmt.Sprintf("Missing required properties: %v. Available properties: %v", e.Missing, e.Available)
	default:
		return fmt.Sprintf("Property validation failed: %v", e.Violations)
	}
}

func (e *ValidationError) Unwrap() error {
	if e.Unsupported {
		return ErrUnsupportedService
	}
	return nil
}

// ServiceConfig 校验通过并补齐默认值的属性
type ServiceConfig map[string]string

func (c ServiceConfig) Bool(key string) bool {
	return strings.EqualFold(c[key], "true")
}

func (c ServiceConfig) Port() int {
	n, _ := strconv.Atoi(c["port"])
	return n
}

func (c ServiceConfig) Scheme() string {
	return strings.ToLower(c["scheme"])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

/**
 * Validate one service declaration
 * @param {string} service - Service name from the label
 * @param {map[string]string} props - Property name to raw value
 * @returns {ServiceConfig} Properties with defaults filled in
 * @returns {[]string} Properties the schema does not know, never fatal
 * @returns {error} *ValidationError describing every problem found
 * @description
 * - ssl_force defaults to true only when the resolved scheme is https
 * - All validator failures are collected before returning
 */
func (r *Registry) Validate(service string, props map[string]string) (ServiceConfig, []string, error) {
	schema, ok := r.Get(service)
	if !ok || !schema.Implemented {
		return nil, nil, &ValidationError{
			Service:     service,
			Unsupported: true,
			Supported:   r.Supported(),
			Available:   sortedKeys(props),
		}
	}

	cfg := make(ServiceConfig)
	var missing []string
	for _, req := range schema.Required {
		v, ok := props[req]
		if !ok {
			missing = append(missing, req)
			continue
		}
		cfg[req] = v
	}
	if len(missing) > 0 {
		return nil, nil, &ValidationError{Service: service, Missing: missing, Available: sortedKeys(props)}
	}

	for _, name := range sortedKeys(schema.Optional) {
		if v, ok := props[name]; ok {
			cfg[name] = v
			continue
		}
		if name != PropSSLForce {
			cfg[name] = schema.Optional[name]
		}
	}
	if _, ok := props[PropSSLForce]; !ok {
		cfg[PropSSLForce] = strconv.FormatBool(cfg.Scheme() == "https")
	}

	var violations []string
	for _, name := range sortedKeys(cfg) {
		if validate, ok := schema.Validators[name]; ok && !validate(cfg[name]) {
			violations = append(violations, fmt.Sprintf("%s='%s' (invalid format)", name, cfg[name]))
		}
	}
	if len(violations) > 0 {
		return nil, nil, &ValidationError{Service: service, Violations: violations}
	}

	var unknown []string
	for _, name := range sortedKeys(props) {
		if _, ok := cfg[name]; !ok {
			unknown = append(unknown, name)
			// 未知属性也保留，后续处理可能会用到
			cfg[name] = props[name]
		}
	}
	return cfg, unknown, nil
}
