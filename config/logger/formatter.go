// Package logger configures logrus and prefixes human readable log messages
// with the container name.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NamespaceField is the log field that is moved into the message prefix
const NamespaceField = "container"

// NamespaceFormatter is a logrus formatter that adds the 'container' field to
// a log prefix for nicer formatted text output.
type NamespaceFormatter struct {
	Parent logrus.Formatter
}

// Format implements logrus.Formatter
func (f *NamespaceFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if v, exists := entry.Data[NamespaceField]; exists {
		if ns, ok := v.(string); ok {
			entry.Message = fmt.Sprintf("[%-20s] %s", ns, entry.Message)
		}
	}
	return f.Parent.Format(entry)
}
