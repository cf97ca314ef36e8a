package loki

import (
	"go.uber.org/zap/zapcore"
)

// Core is a zapcore.Core that encodes entries as JSON lines and hands them to a Pusher.
type Core struct {
	zapcore.LevelEnabler

	enc    zapcore.Encoder
	pusher *Pusher
}

// NewCore creates a Loki core writing to the given pusher.
func NewCore(enabler zapcore.LevelEnabler, pusher *Pusher) *Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     "",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.EpochMillisTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	return &Core{
		LevelEnabler: enabler,
		enc:          zapcore.NewJSONEncoder(encCfg),
		pusher:       pusher,
	}
}

// With returns a core carrying the given fields on every entry.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := &Core{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		pusher:       c.pusher,
	}

	for i := range fields {
		fields[i].AddTo(clone.enc)
	}

	return clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	c.pusher.Add(ent.Time, buf.String())

	return nil
}

// Sync is a no-op; the pusher flushes on its own schedule and on Stop.
func (c *Core) Sync() error {
	return nil
}
