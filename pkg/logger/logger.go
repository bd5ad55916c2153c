// Package logger configures process-wide logrus behavior and provides helpers for
// component-scoped loggers.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config is the configuration of the logger.
type Config struct {
	Level string `json:"level"`
	Color bool   `json:"color"`
}

// DefaultConfig returns the default configuration of the logger.
func DefaultConfig() *Config {
	return &Config{
		Level: "info",
		Color: true,
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return []error{err}
	}
	return nil
}

// SetLogrus sets logrus globally.
func SetLogrus(c Config) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level: %s", c.Level))
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
		DisableColors: !c.Color,
	})
}

// Context carries the fields that identify one component's log lines, so nested
// components can extend rather than restate them.
type Context struct {
	fields logrus.Fields
}

// NewContext creates a Context from alternating key-value pairs.
func NewContext(keysAndValues ...interface{}) Context {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return Context{fields: fields}
}

// With returns a child Context carrying the parent's fields plus the given pairs.
func (c Context) With(keysAndValues ...interface{}) Context {
	child := logrus.Fields{}
	for k, v := range c.fields {
		child[k] = v
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		child[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return Context{fields: child}
}

// Logger returns a logrus entry carrying the context's fields.
func (c Context) Logger() *logrus.Entry {
	return logrus.WithFields(c.fields)
}
