package queue

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger adapts zerolog to asynq.Logger.
type Logger struct {
	L zerolog.Logger
}

func (l Logger) Debug(args ...any) { l.L.Debug().Msg(fmt.Sprint(args...)) }
func (l Logger) Info(args ...any)  { l.L.Info().Msg(fmt.Sprint(args...)) }
func (l Logger) Warn(args ...any)  { l.L.Warn().Msg(fmt.Sprint(args...)) }
func (l Logger) Error(args ...any) { l.L.Error().Msg(fmt.Sprint(args...)) }
func (l Logger) Fatal(args ...any) { l.L.Fatal().Msg(fmt.Sprint(args...)) }
