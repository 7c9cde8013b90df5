package domain

import "go.uber.org/zap"

// BestEffort runs an auxiliary operation whose failure must never block the
// user-visible response. The call site decides to ignore failure by choosing
// this wrapper; the wrapper logs and reports the outcome. Panics inside fn
// are contained the same way.
func BestEffort(logger *zap.Logger, op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Auxiliary operation panicked",
				zap.String("op", op),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	if err := fn(); err != nil {
		logger.Warn("Auxiliary operation failed", zap.String("op", op), zap.Error(err))
		return false
	}
	return true
}
