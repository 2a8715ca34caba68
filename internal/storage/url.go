package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zerovault/zerovault/internal/zverrors"
)

// ParseS3URL parses s3://<access>:<secret>@<endpoint>/<bucket>/<prefix>?region=<r>.
func ParseS3URL(u *url.URL) (S3Config, error) {
	cfg := S3Config{Endpoint: u.Host, Region: u.Query().Get("region")}

	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return cfg, zverrors.New(zverrors.Configuration, "parse s3 url", fmt.Errorf("missing access key or secret key"))
	}

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return cfg, zverrors.New(zverrors.Configuration, "parse s3 url", fmt.Errorf("missing bucket"))
	}
	cfg.Bucket = parts[0]
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	return cfg, nil
}

// ParseFileURL parses file://<path>.
func ParseFileURL(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	path := u.Path
	if u.Host != "" {
		path = u.Host + path
	}
	return path
}

// ParseMemoryURL parses memory://<name>.
func ParseMemoryURL(u *url.URL) string {
	if u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(u.Opaque, "//")
}
