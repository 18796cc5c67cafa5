package labels

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupIntoDeclarations(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	decls := p.GroupIntoDeclarations(map[string]string{
		"snadboy.web.domain": "a.com",
		"snadboy.web.port":   "80",
		"snadboy.api.domain": "b.com",
		"snadboy.api.port":   "8080",
	})
	assert.Equal(t, Declarations{
		"web": {"domain": "a.com", "port": "80"},
		"api": {"domain": "b.com", "port": "8080"},
	}, decls)
}

func TestGroupIntoDeclarationsCaseAndShortKeys(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warn")

	p := NewProcessor("snadboy", nil)
	assert.Equal(t, "snadboy.", p.Prefix())

	decls := p.GroupIntoDeclarations(map[string]string{
		"SNADBOY.RevP.Domain":         "Mixed.Example.com",
		"snadboy.revp.headers.x-test": "1",
		"snadboy.orphan":              "dropped",
		"other.revp.port":             "80",
	})
	require.Len(t, decls, 1)
	assert.Equal(t, "Mixed.Example.com", decls["revp"]["domain"])
	assert.Equal(t, "1", decls["revp"]["headers.x-test"])
	assert.Contains(t, buf.String(), "snadboy.orphan")
}

func TestPrefixMatchIsByteAligned(t *testing.T) {
	p := NewProcessor("k8s.", nil)
	labels := map[string]string{
		// U+212A KELVIN SIGN 小写为"k"，字节长度不同
		"\u212a8s.web.domain": "kelvin.com",
		"K8S.web.domain":      "a.com",
		"K8S.web.port":        "80",
		"k8":                  "short",
	}
	assert.Equal(t, Declarations{"web": {"domain": "a.com", "port": "80"}}, p.GroupIntoDeclarations(labels))
	assert.NotContains(t, p.ExtractServiceLabels(labels), "\u212a8s.web.domain")
	assert.False(t, p.HasServiceLabels(map[string]string{"\u212a8s.web.domain": "x", "k": "y"}))
}

func TestValidateForWarnsOncePerOwner(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warn")

	p := NewProcessor("snadboy.", nil)
	props := map[string]string{"domain": "a.com", "port": "80", "color": "blue"}
	for i := 0; i < 3; i++ {
		_, err := p.ValidateFor("node1:abc", "revp", props)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "unknown properties"))

	// 属性集合变化后重新告警
	props["shade"] = "dark"
	_, err := p.ValidateFor("node1:abc", "revp", props)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), "unknown properties"))

	// 没有归属时每次都告警
	_, _ = p.Validate("revp", props)
	_, _ = p.Validate("revp", props)
	assert.Equal(t, 4, strings.Count(buf.String(), "unknown properties"))
}

func TestHasAndExtractServiceLabels(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	labels := map[string]string{
		"Snadboy.revp.port":  "80",
		"com.docker.compose": "x",
	}
	assert.True(t, p.HasServiceLabels(labels))
	assert.False(t, p.HasServiceLabels(map[string]string{"com.docker.compose": "x"}))
	assert.Equal(t, map[string]string{"Snadboy.revp.port": "80"}, p.ExtractServiceLabels(labels))
}

func TestValidateDerivesSSLForce(t *testing.T) {
	p := NewProcessor("snadboy.", nil)

	cfg, err := p.Validate("revp", map[string]string{"domain": "x", "port": "80", "scheme": "https"})
	require.NoError(t, err)
	assert.Equal(t, "true", cfg[PropSSLForce])
	assert.Equal(t, "/", cfg["path"])
	assert.Equal(t, "false", cfg["websocket"])

	cfg, err = p.Validate("revp", map[string]string{"domain": "x", "port": "80", "scheme": "http"})
	require.NoError(t, err)
	assert.Equal(t, "false", cfg[PropSSLForce])

	cfg, err = p.Validate("revp", map[string]string{"domain": "x", "port": "80", "scheme": "HTTPS"})
	require.NoError(t, err)
	assert.True(t, cfg.Bool(PropSSLForce))

	cfg, err = p.Validate("revp", map[string]string{"domain": "x", "port": "80", "scheme": "https", "ssl_force": "false"})
	require.NoError(t, err)
	assert.False(t, cfg.Bool(PropSSLForce))
}

func TestValidateMissingRequired(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	_, err := p.Validate("revp", map[string]string{"port": "80"})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"domain"}, verr.Missing)
	assert.Contains(t, err.Error(), "domain")
}

func TestValidateUnsupported(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	for _, service := range []string{"web", "nope"} {
		_, err := p.Validate(service, map[string]string{"domain": "a.com", "port": "80"})
		require.Error(t, err, service)
		assert.ErrorIs(t, err, ErrUnsupportedService)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"revp"}, verr.Supported)
	}
}

func TestValidateAccumulatesViolations(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	_, err := p.Validate("revp", map[string]string{
		"domain":    "a.com",
		"port":      "70000",
		"scheme":    "ftp",
		"path":      "api",
		"websocket": "maybe",
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 4)
}

func TestValidateUnknownPropertyIsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warn")

	p := NewProcessor("snadboy.", nil)
	cfg, err := p.Validate("revp", map[string]string{"domain": "a.com", "port": "80", "color": "blue"})
	require.NoError(t, err)
	assert.Equal(t, "blue", cfg["color"])
	assert.Contains(t, buf.String(), "color")
}

func TestPortValidator(t *testing.T) {
	for v, want := range map[string]bool{
		"1": true, "65535": true, "0": false, "65536": false, "": false, "-1": false, "8o": false,
	} {
		assert.Equal(t, want, isPort(v), v)
	}
}

const attrsJSON = `{
  "Created": "2024-01-01T00:00:00Z",
  "State": {"StartedAt": "2024-01-01T00:00:05Z"},
  "Config": {"Env": ["A=1", "B=x=y", "EMPTY=", "NOVALUE", "=orphan"]},
  "NetworkSettings": {
    "Networks": {
      "zeta": {"IPAddress": "10.0.0.5", "Gateway": "10.0.0.1", "MacAddress": "02:42", "NetworkID": "n1"},
      "alpha": {"IPAddress": "172.18.0.3"},
      "none": {"IPAddress": ""}
    },
    "Ports": {
      "80/tcp": [{"HostIp": "", "HostPort": "8080"}],
      "53/udp": [{"HostIp": "127.0.0.1", "HostPort": "5353"}],
      "9000/tcp": null,
      "9100/tcp": [{"HostIp": "0.0.0.0", "HostPort": ""}]
    }
  }
}`

func TestProcessContainer(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	rec := models.ContainerRecord{
		ID:       "abc123",
		ShortID:  "abc123",
		Name:     "web",
		Status:   "running",
		Labels:   map[string]string{"snadboy.revp.domain": "a.com", "maintainer": "me"},
		Attrs:    []byte(attrsJSON),
		HostName: "node1",
	}
	mc, err := p.ProcessContainer(rec, "192.168.1.10")
	require.NoError(t, err)
	require.NotNil(t, mc)

	assert.Equal(t, "node1:abc123", mc.Key)
	assert.Equal(t, "192.168.1.10", mc.HostIP)
	assert.Equal(t, map[string]string{"snadboy.revp.domain": "a.com"}, mc.ServiceLabels)
	assert.Equal(t, "10.0.0.5", mc.PrimaryIP)
	assert.Len(t, mc.Networks, 2)
	assert.Equal(t, "10.0.0.1", mc.Networks["zeta"].Gateway)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, mc.Env)
	assert.Equal(t, "2024-01-01T00:00:05Z", mc.StartedAt)
	assert.Equal(t, []models.PortBinding{
		{ContainerPort: "53", Protocol: "udp", HostIP: "127.0.0.1", HostPort: 5353},
		{ContainerPort: "80", Protocol: "tcp", HostIP: "0.0.0.0", HostPort: 8080},
	}, mc.Ports)
}

func TestProcessContainerWithoutLabels(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	mc, err := p.ProcessContainer(models.ContainerRecord{ID: "x", Labels: map[string]string{"a": "b"}}, "")
	assert.NoError(t, err)
	assert.Nil(t, mc)
}

func TestProcessContainerBadAttrs(t *testing.T) {
	p := NewProcessor("snadboy.", nil)
	mc, err := p.ProcessContainer(models.ContainerRecord{
		ID:     "x",
		Labels: map[string]string{"snadboy.revp.port": "80"},
		Attrs:  []byte("{broken"),
	}, "")
	assert.Error(t, err)
	require.NotNil(t, mc)
	assert.Empty(t, mc.PrimaryIP)
}
