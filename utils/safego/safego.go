/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package safego

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

const defaultRestartTimeout = 2 * time.Second

type Execution struct {
	f              func()
	log            zerolog.Logger
	restartTimeout time.Duration
	done           chan struct{}
}

// Run runs f in a new goroutine with a panic handler (without restart)
func Run(log zerolog.Logger, f func()) *Execution {
	exec := &Execution{f: f, log: log, done: make(chan struct{})}
	return exec.run()
}

// RunWithRestart runs f in a new goroutine with a panic handler:
// log, wait and restart the goroutine
func RunWithRestart(log zerolog.Logger, f func()) *Execution {
	exec := &Execution{f: f, log: log, restartTimeout: defaultRestartTimeout, done: make(chan struct{})}
	return exec.run()
}

func (exec *Execution) run() *Execution {
	go func() {
		restart := false
		defer func() {
			if !restart {
				close(exec.done)
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				logPanic(exec.log, r)
				if exec.restartTimeout > 0 {
					restart = true
					time.Sleep(exec.restartTimeout)
					exec.run()
				}
			}
		}()
		exec.f()
	}()
	return exec
}

func (exec *Execution) WithRestartTimeout(timeout time.Duration) *Execution {
	exec.restartTimeout = timeout
	return exec
}

// Done is closed once the function returns without being restarted
func (exec *Execution) Done() <-chan struct{} {
	return exec.done
}

// Recovery logs a recovered panic with its stack. It must be deferred directly.
func Recovery(log zerolog.Logger, exit bool) {
	if r := recover(); r != nil {
		logPanic(log, r)
		if exit {
			os.Exit(1)
		}
	}
}

// RecoverTo converts a panic into an error assigned to *err. It must be deferred directly.
func RecoverTo(log zerolog.Logger, err *error) {
	if r := recover(); r != nil {
		logPanic(log, r)
		*err = fmt.Errorf("panic: %v", r)
	}
}

func logPanic(log zerolog.Logger, r any) {
	log.Error().Str("stack", string(debug.Stack())).Msgf("recovered from panic: %v", r)
}
