// Package command builds device commands and runs them against a port,
// pairing each with its response.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one outbound ASCII command. Body excludes the "$VN" prefix
// and the checksum; Match is the body prefix of the expected response.
type Command struct {
	Body  string
	Match string
}

func (c Command) String() string { return "VN" + c.Body }

func named(mnemonic string, args ...string) Command {
	body := mnemonic
	if len(args) > 0 {
		body += "," + strings.Join(args, ",")
	}
	return Command{Body: body, Match: "VN" + mnemonic}
}

func flag(state bool) string {
	if state {
		return "1"
	}
	return "0"
}

func ReadRegister(id uint8) Command {
	reg := fmt.Sprintf("%02d", id)
	return Command{Body: "RRG," + reg, Match: "VNRRG," + reg}
}

// WriteRegister writes the ASCII encoded fields of register id.
func WriteRegister(id uint8, fields string) Command {
	reg := fmt.Sprintf("%02d", id)
	return Command{Body: "WRG," + reg + "," + fields, Match: "VNWRG," + reg}
}

// WriteSettings saves the current register values to non-volatile memory.
func WriteSettings() Command          { return named("WNV") }
func Reset() Command                  { return named("RST") }
func RestoreFactorySettings() Command { return named("RFS") }
func SetFilterBias() Command          { return named("SFB") }

func KnownMagneticDisturbance(present bool) Command {
	return named("KMD", flag(present))
}

func KnownAccelerationDisturbance(present bool) Command {
	return named("KAD", flag(present))
}

func AsyncOutputEnable(enable bool) Command {
	return named("ASY", flag(enable))
}

// SetInitialHeading seeds the filter heading in degrees.
func SetInitialHeading(heading float64) Command {
	return named("SIH", fmt.Sprintf("%+08.3f", heading))
}

func SetInitialHeadingYPR(yaw, pitch, roll float64) Command {
	return named("SIH", fmtFloats(yaw, pitch, roll)...)
}

// SetInitialHeadingQuaternion seeds the filter attitude from a unit
// quaternion, vector part first.
func SetInitialHeadingQuaternion(x, y, z, w float64) Command {
	q := make([]string, 0, 4)
	for _, v := range []float64{x, y, z, w} {
		q = append(q, fmt.Sprintf("%+.6f", v))
	}
	return named("SIH", q...)
}

// PollBinaryOutput asks for one message of binary output n (1..3). The
// device answers with the binary frame itself, so the command has no match
// and is always sent fire-and-forget.
func PollBinaryOutput(n int) Command {
	return Command{Body: "BOM," + strconv.Itoa(n)}
}

func fmtFloats(xs ...float64) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = fmt.Sprintf("%+08.3f", x)
	}
	return out
}

// Raw wraps a caller supplied body such as "RRG,01". The response match is
// derived from the mnemonic and, for register commands, the register id.
func Raw(body string) Command {
	body = strings.TrimPrefix(strings.TrimPrefix(body, "$"), "VN")
	parts := strings.SplitN(body, ",", 3)
	if parts[0] == "BOM" {
		return Command{Body: body}
	}
	match := "VN" + parts[0]
	if (parts[0] == "RRG" || parts[0] == "WRG") && len(parts) > 1 {
		match += "," + parts[1]
	}
	return Command{Body: body, Match: match}
}

// mnemonics lists the response tags of commands; one arriving unasked is
// reported as an unexpected message.
var mnemonics = map[string]bool{
	"VNRRG": true, "VNWRG": true, "VNWNV": true, "VNRST": true, "VNRFS": true,
	"VNKMD": true, "VNKAD": true, "VNSIH": true, "VNASY": true, "VNSFB": true,
}

// matches reports whether body answers a command with the given match
// prefix. The prefix must end at a field boundary.
func matches(body, match string) bool {
	if !strings.HasPrefix(body, match) {
		return false
	}
	return len(body) == len(match) || body[len(match)] == ','
}
