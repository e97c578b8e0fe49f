package hwexec

import (
	"context"
	"strings"
)

// DMI reads SMBIOS strings with dmidecode.
type DMI struct {
	Runner Runner
}

// String returns the value of a dmidecode keyword such as
// "system-serial-number" or "bios-version".
func (d DMI) String(ctx context.Context, keyword string) (string, error) {
	out, err := d.Runner.Run(ctx, "dmidecode", "-s", keyword)
	if err != nil {
		return "", err
	}
	// dmidecode prefixes comment lines with '#' when run on odd firmware.
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line, nil
		}
	}
	return "", nil
}
