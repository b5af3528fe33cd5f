package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/shule/core"
)

// RollbarLogger reports to Rollbar and mirrors everything to a std logger.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for queued reports to be sent.
func (l RollbarLogger) Close() {
	rollbar.Close()
}

// prepare builds rollbar args: msg, then at most one error and one custom-data map.
// Extra maps are merged; anything else goes under "args".
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		err    error
		custom map[string]interface{}
		extra  []interface{}
	)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			if err == nil {
				err = a
			} else {
				extra = append(extra, a.Error())
			}
		case map[string]interface{}:
			if custom == nil {
				custom = make(map[string]interface{}, len(a))
			}
			for k, v := range a {
				custom[k] = v
			}
		case map[string]string:
			if custom == nil {
				custom = make(map[string]interface{}, len(a))
			}
			for k, v := range a {
				custom[k] = v
			}
		default:
			extra = append(extra, a)
		}
	}
	if len(extra) > 0 {
		if custom == nil {
			custom = make(map[string]interface{}, 1)
		}
		custom["args"] = extra
	}

	out := make([]interface{}, 0, 3)
	if err != nil {
		// rollbar uses the error as the item title; keep msg in custom data
		out = append(out, err)
		if custom == nil {
			custom = make(map[string]interface{}, 1)
		}
		custom["message"] = msg
	} else {
		out = append(out, msg)
	}
	if custom != nil {
		out = append(out, custom)
	}
	return out
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s\n", level, msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Close()
	l.std.Fatal(msg)
}
