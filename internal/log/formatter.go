package log

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders entry through the pattern. Supported verbs: %time,
// %level, %field, %msg, %caller.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", getCaller(entry),
	)
	return []byte(r.Replace(f.pattern)), nil
}

// getCaller returns package/file.go:line, or "-" when caller reporting is
// off.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		slash := strings.LastIndex(fn, "/")
		pkg = fn[slash+1:]
		if dot := strings.Index(pkg, "."); dot != -1 {
			pkg = pkg[:dot]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, filepath.Base(entry.Caller.File), entry.Caller.Line)
}

// buildFields renders fields as k=v pairs sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		val := entry.Data[k]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		fields = append(fields, fmt.Sprintf("%s=%v", k, val))
	}
	return strings.Join(fields, ",")
}
