// Command pmon-eeprom decodes, verifies and builds ONIE TlvInfo system
// EEPROM images.
//
// Usage:
//
//	pmon-eeprom decode [-json] <file>
//	pmon-eeprom verify <file>
//	pmon-eeprom encode -o <image> <fields.yaml>
//
// The file may be a dump or the sysfs eeprom attribute of the device, for
// example /sys/bus/i2c/devices/0-0056/eeprom.
//
// The encode input is a YAML mapping from field name to value, in the
// order the records are written:
//
//	product_name: DS4000
//	serial_number: SN1234
//	base_mac_address: "00:11:22:33:44:55"
//	num_macs: 128
//	vendor_extension:
//	  - "0x00 0x00 0x01 0x23 0x01"
package main

import (
	"flag"
	"fmt"
	"os"
)

const usage = `pmon-eeprom - ONIE system EEPROM tool

Usage:
  pmon-eeprom <command> [flags] <file>

Commands:
  decode   Print the records of an EEPROM image
  verify   Check header and CRC-32 of an EEPROM image
  encode   Build an EEPROM image from a YAML field list

Use "pmon-eeprom <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "decode":
		err = runDecode(args)
	case "verify":
		err = runVerify(args)
	case "encode":
		err = runEncode(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseOne(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("exactly one file argument required")
	}
	return fs.Arg(0), nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	path, err := parseOne(fs, args)
	if err != nil {
		return err
	}
	info, err := readImage(path)
	if info == nil {
		return err
	}
	if werr := writeDecoded(os.Stdout, info, *asJSON); werr != nil {
		return werr
	}
	return err
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	path, err := parseOne(fs, args)
	if err != nil {
		return err
	}
	info, err := readImage(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: TlvInfo v%d, %d records, CRC-32 0x%08X OK\n", path, info.Version, len(info.TLVs), info.CRC)
	return nil
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	output := fs.String("o", "", "Output image file (required)")
	path, err := parseOne(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err := encodeYAML(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), *output)
	return nil
}
