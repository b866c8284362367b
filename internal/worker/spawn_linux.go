//go:build linux

package worker

import (
	"os/exec"
	"runtime"
	"syscall"
)

// configureCommand makes the worker die with the host.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}

// startCommand starts cmd and returns the function that reaps it. Pdeathsig
// fires when the thread that forked the child exits, not the process, so the
// fork happens on a locked thread that stays parked until the child is reaped.
func startCommand(cmd *exec.Cmd) (wait func() error, err error) {
	started := make(chan error, 1)
	reap := make(chan struct{})
	reaped := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		if err := cmd.Start(); err != nil {
			runtime.UnlockOSThread()
			started <- err
			return
		}
		started <- nil
		<-reap
		reaped <- cmd.Wait()
		// exiting while locked retires the thread
	}()

	if err := <-started; err != nil {
		return nil, err
	}
	return func() error {
		close(reap)
		return <-reaped
	}, nil
}
