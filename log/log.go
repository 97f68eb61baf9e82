package log

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type DXLogLevel int

const (
	DXLogLevelPanic DXLogLevel = iota // programming error, the process must stop
	DXLogLevelFatal                   // unusable configuration or input, the process must exit
	DXLogLevelError                   // unexpected failure, the process keeps serving other calls
	DXLogLevelWarn                    // bad input, the process keeps running
	DXLogLevelInfo
	DXLogLevelDebug
	DXLogLevelTrace
)

var DXLogLevelAsString = map[DXLogLevel]string{
	DXLogLevelTrace: "TRACE",
	DXLogLevelDebug: "DEBUG",
	DXLogLevelInfo:  "INFO",
	DXLogLevelWarn:  "WARN",
	DXLogLevelError: "ERROR",
	DXLogLevelFatal: "FATAL",
	DXLogLevelPanic: "PANIC",
}

type DXLogFormat int

const (
	DXLogFormatText DXLogFormat = iota
	DXLogFormatJSON
)

type DXLog struct {
	Context context.Context
	Prefix  string
}

var Format DXLogFormat

func NewLog(parentLog *DXLog, ctx context.Context, prefix string) DXLog {
	if parentLog != nil {
		if parentLog.Prefix != "" {
			prefix = parentLog.Prefix + " | " + prefix
		}
		if ctx == nil {
			ctx = parentLog.Context
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return DXLog{Context: ctx, Prefix: prefix}
}

func (l *DXLog) entry(location string) *log.Entry {
	fields := log.Fields{"prefix": l.Prefix}
	if location != "" {
		fields["location"] = location
	}
	a := log.WithFields(fields)
	if l.Context != nil {
		a = a.WithContext(l.Context)
	}
	return a
}

func (l *DXLog) LogText(severity DXLogLevel, location string, text string) {
	a := l.entry(location)
	switch severity {
	case DXLogLevelTrace:
		a.Tracef("%s", text)
	case DXLogLevelDebug:
		a.Debugf("%s", text)
	case DXLogLevelInfo:
		a.Infof("%s", text)
	case DXLogLevelWarn:
		a.Warnf("%s", text)
	case DXLogLevelError:
		a.Errorf("%s", text)
	case DXLogLevelFatal:
		a.Fatalf("Terminating... %s", text)
	case DXLogLevelPanic:
		a = a.WithField(`stack`, string(debug.Stack()))
		a.Fatalf("%s", text)
	default:
		a.Printf("%s", text)
	}
}

// LogSQL writes an executed statement and its arguments, used when echo is enabled.
func (l *DXLog) LogSQL(statement string, args any) {
	l.entry(`sql`).WithField(`args`, args).Infof("%s", statement)
}

func (l *DXLog) Trace(text string) {
	l.LogText(DXLogLevelTrace, ``, text)
}

func (l *DXLog) Tracef(text string, v ...any) {
	l.Trace(fmt.Sprintf(text, v...))
}

func (l *DXLog) Debug(text string) {
	l.LogText(DXLogLevelDebug, ``, text)
}

func (l *DXLog) Debugf(text string, v ...any) {
	l.Debug(fmt.Sprintf(text, v...))
}

func (l *DXLog) Info(text string) {
	l.LogText(DXLogLevelInfo, ``, text)
}

func (l *DXLog) Infof(text string, v ...any) {
	l.Info(fmt.Sprintf(text, v...))
}

func (l *DXLog) Warn(text string) {
	l.LogText(DXLogLevelWarn, ``, text)
}

func (l *DXLog) Warnf(text string, v ...any) {
	l.Warn(fmt.Sprintf(text, v...))
}

func (l *DXLog) WarnAndCreateErrorf(text string, v ...any) (err error) {
	err = errors.Errorf(text, v...)
	l.LogText(DXLogLevelWarn, ``, err.Error())
	return err
}

func (l *DXLog) Error(text string) {
	l.LogText(DXLogLevelError, ``, text)
}

func (l *DXLog) Errorf(text string, v ...any) {
	l.Error(fmt.Sprintf(text, v...))
}

func (l *DXLog) ErrorAndCreateErrorf(text string, v ...any) (err error) {
	err = errors.Errorf(text, v...)
	l.Error(err.Error())
	return err
}

func (l *DXLog) Fatal(text string) {
	l.LogText(DXLogLevelFatal, ``, text)
}

func (l *DXLog) Fatalf(text string, v ...any) {
	l.Fatal(fmt.Sprintf(text, v...))
}

func (l *DXLog) Panic(location string, err error) {
	l.LogText(DXLogLevelPanic, location, err.Error())
}

var Log DXLog

func SetFormatJSON() {
	log.SetFormatter(&log.JSONFormatter{})
	Format = DXLogFormatJSON
}

func SetFormatText() {
	log.SetFormatter(&log.TextFormatter{})
	Format = DXLogFormatText
}

// SetLevel accepts logrus level names ("info", "debug", ...).
func SetLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "INVALID_LOG_LEVEL:%s", level)
	}
	log.SetLevel(l)
	return nil
}

func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func init() {
	log.SetLevel(log.InfoLevel)
	SetFormatJSON()
	Log = NewLog(nil, context.Background(), "")
}
