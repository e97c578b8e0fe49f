package sysfs

import (
	"fmt"
	"strings"
)

// Expand substitutes {name} placeholders in a path template with values from
// vars. Placeholders without a value are left in place so that Validate can
// report them.
//
//	Expand("/sys/bus/i2c/devices/{bus}-0050/eeprom", map[string]any{"bus": 18})
//	// "/sys/bus/i2c/devices/18-0050/eeprom"
func Expand(template string, vars map[string]any) string {
	if !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Placeholders returns the placeholder names used in template, in order of
// first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			return names
		}
		name := template[start+1 : start+end]
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		template = template[start+end+1:]
	}
}
