package pwm

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// NewFakeChannel creates an exported-looking channel directory on an in-memory
// filesystem and returns a channel on it. Intended for tests.
func NewFakeChannel(fs afero.Fs, dir string) (*SysfsChannel, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for name, v := range map[string]string{filePeriod: "0", fileDuty: "0", fileRun: "0"} {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), []byte(v), 0o644); err != nil {
			return nil, err
		}
	}
	return NewSysfsChannel(fs, dir), nil
}
