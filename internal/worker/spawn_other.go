//go:build !linux

package worker

import "os/exec"

func configureCommand(cmd *exec.Cmd) {}

func startCommand(cmd *exec.Cmd) (func() error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}
