package logging

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

var (
	mu      sync.Mutex
	logFile *os.File
	debug   bool
)

// Init routes the standard logger and klog to stdout and, when logPath is
// set, to an appended log file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	w := io.MultiWriter(writers...)
	log.SetOutput(w)
	klog.LogToStderr(false)
	klog.SetOutput(w)
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	klog.Flush()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	klog.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// KlogFlags returns a flag set holding klog's flags, for the CLI to expose -v.
func KlogFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	return fs
}

// SetDebug enables Debugf output.
func SetDebug(enabled bool) {
	mu.Lock()
	debug = enabled
	mu.Unlock()
}

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// Debugf logs only when debug output is enabled.
func Debugf(format string, args ...any) {
	mu.Lock()
	on := debug
	mu.Unlock()
	if on {
		log.Println("[DEBUG] " + fmt.Sprintf(format, args...))
	}
}

// LogRun records one benchmark phase with its payload.
func LogRun(phase, executor, model string, payload any) {
	log.Println(buildRunMessage(phase, executor, model, payload))
}

func buildRunMessage(phase, executor, model string, payload any) string {
	p := strings.TrimSpace(phase)
	if p != "" {
		p = strings.ToUpper(p)
	}
	executorValue := strings.TrimSpace(executor)
	if executorValue == "" {
		executorValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", p)}
	parts = append(parts, fmt.Sprintf("executor=%s", executorValue))
	parts = append(parts, fmt.Sprintf("model=%s", modelValue))
	parts = append(parts, fmt.Sprintf("payload=%s", formatPayload(payload)))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
