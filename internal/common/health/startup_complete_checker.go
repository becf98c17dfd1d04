package health

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// StartupCompleteChecker reports unhealthy until MarkComplete is called.
type StartupCompleteChecker struct {
	complete atomic.Bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{}
}

func (s *StartupCompleteChecker) MarkComplete() {
	s.complete.Store(true)
}

func (s *StartupCompleteChecker) Check() error {
	if s.complete.Load() {
		return nil
	}
	return errors.New("startup is not complete")
}
