package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 可从 "1h30m" 这类字符串反序列化的时长
type Duration time.Duration

// D 转回 time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML 支持字符串（"15m"）和整数（纳秒）两种写法
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := node.Decode(&asString); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML 输出可读字符串
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
