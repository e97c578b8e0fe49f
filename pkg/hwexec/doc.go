// Package hwexec runs the board management tools that platform code shells
// out to: i2cget/i2cset for CPLD registers, ipmitool for BMC-managed sensors
// and dmidecode for SMBIOS identity strings.
//
// Every invocation goes through a Runner so that callers can be tested with a
// mock, and every call takes a context that bounds its run time.
package hwexec
