package orchestration

import (
	"context"
	"fmt"
	"strings"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// appendSpoken adds the text of a new speech session to what was said so
// far. Sessions start without a leading space, so one is put between them.
func appendSpoken(spoken *strings.Builder, text string, first bool) {
	if first && spoken.Len() > 0 && text != "" && !strings.HasPrefix(text, " ") {
		spoken.WriteByte(' ')
	}
	spoken.WriteString(text)
}
