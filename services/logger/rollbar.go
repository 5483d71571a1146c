package logsvc

import (
	"fmt"
	"io"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
)

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
	return &RollbarLogger{std: std}
}

// NewDiscardLogger returns a logger that reports nowhere. Used in tests.
func NewDiscardLogger() *RollbarLogger {
	rollbar.SetEnabled(false)
	return &RollbarLogger{std: log.New(io.Discard, "", 0)}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// prepare turns args into rollbar's expected fmt: msg, error, map[string]interface{}.
// An access.Principal is set as the rollbar person; "key", value pairs become extras.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		personSet bool
		key       string
	)
	extras := make(map[string]interface{})
	newArgs := make([]interface{}, 0, 3)
	newArgs = append(newArgs, msg)

	for _, arg := range args {
		if key != "" {
			extras[key] = arg
			key = ""
			continue
		}
		switch val := arg.(type) {
		case access.Principal:
			if !personSet { // only set one Principal
				rollbar.SetPerson(val.ID, val.Name, val.Email)
				extras["role"] = string(val.Role)
				personSet = true
			}
		case error:
			newArgs = append(newArgs, val)
		case map[string]interface{}:
			for k, v := range val {
				extras[k] = v
			}
		case string:
			key = val
		default:
			extras[fmt.Sprintf("arg%d", len(extras))] = val
		}
	}
	if key != "" {
		extras[key] = nil
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}
