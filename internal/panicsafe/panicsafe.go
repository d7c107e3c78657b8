// Package panicsafe turns a recovered panic into the "logged as critical
// with a stack representation" exit path required by spec §7, instead of
// letting the runtime's own crash dump be the only record.
package panicsafe

import (
	"errors"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

// Guard runs fn and, if it panics, dumps the panic value (walking its error
// chain with go-spew when it is an error, the same way the teacher's
// pkg/fmtt.PrintErrChainDebug does for diagnosing wrapped errors) into a
// single critical zap log line, then exits the process with status 1.
//
// Each program's main wraps its top-level run with Guard, and the
// daemonshepherd controller and the hailerter tracker wrap their actor-loop
// goroutines with it (§5), so a panic there terminates the whole process
// rather than leaving a half-updated map behind. recover only sees panics of
// the goroutine Guard runs in; other goroutines are not covered.
func Guard(log *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			dump := dumpPanic(r)
			log.Error("unrecovered panic",
				zap.String("goroutine", name),
				zap.Any("panic", r),
				zap.String("dump", dump),
			)
			os.Exit(1)
		}
	}()
	fn()
}

// dumpPanic renders the panic value for the critical log line: the error
// chain (type + message per layer) when r is an error, else a plain spew
// dump of the value.
func dumpPanic(r any) string {
	err, ok := r.(error)
	if !ok {
		return spew.Sdump(r)
	}

	var b []byte
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		b = append(b, []byte(fmt.Sprintf("[%d] %T: %v\n", i, e, e))...)
	}
	b = append(b, []byte(spew.Sdump(err))...)
	return string(b)
}
