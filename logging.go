package stm

// Thin call-site wrappers, never a logger field threaded through every
// function. Grounded on go-block-cache's map.go/shard.go, which call
// zap.L() directly at the point of interest rather than passing a
// *zap.Logger around. An Engine's logger (a no-op logger by default,
// overridable via WithLogger) is only consulted here.

func (e *Engine) logDebug(msg string, fields ...interface{}) {
	e.cfg.logger.Sugar().Debugw(msg, fields...)
}

func (e *Engine) logWarn(msg string, fields ...interface{}) {
	e.cfg.logger.Sugar().Warnw(msg, fields...)
}

func (e *Engine) logError(msg string, fields ...interface{}) {
	e.cfg.logger.Sugar().Errorw(msg, fields...)
}
