// Package sysfs reads and writes kernel attribute files.
//
// All paths are resolved against a root directory so that platform code can
// be exercised against a fake tree. The root defaults to "/" and may be
// overridden with the PMON_SYSFS_ROOT environment variable:
//
//	fs := sysfs.Default()
//	present, err := fs.ReadBool("/sys/bus/i2c/devices/4-0062/sfp1_present")
//
// Every call opens the file, performs a single read or write, and closes it
// again. Nothing is cached.
package sysfs
