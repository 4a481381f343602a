// Package print provides helper package to print objects.
package print

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/cryptoki/certutil"
	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/oid"
)

// JSON prints value to out
func JSON(w io.Writer, value any) {
	b, err := json.MarshalIndent(value, "", "\t")
	if err != nil {
		fmt.Fprintf(w, "ERROR: %s\n", err.Error())
		return
	}
	fmt.Fprintln(w, string(b))
}

// Certificates prints list of cert details,
// or one line summary per certificate if short is set
func Certificates(w io.Writer, list []*x509.Certificate, short bool) {
	for idx, crt := range list {
		if short {
			fmt.Fprintln(w, certutil.Summary(crt))
			continue
		}
		fmt.Fprintf(w, "==================================== %d ====================================\n", 1+idx)
		Certificate(w, crt)
	}
}

// Certificate prints cert details
func Certificate(w io.Writer, crt *x509.Certificate) {
	fmt.Fprintf(w, "Subject: %s\n", certutil.NameToString(&crt.Subject))
	fmt.Fprintf(w, "  Serial: %s\n", crt.SerialNumber.String())
	fmt.Fprintf(w, "  Issuer: %s\n", certutil.NameToString(&crt.Issuer))
	fmt.Fprintf(w, "  Issued: %s\n", crt.NotBefore.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "  Expires: %s\n", crt.NotAfter.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "  CA: %t\n", crt.IsCA)
	if crt.KeyUsage != 0 {
		fmt.Fprintf(w, "  Usage: %s\n", strings.Join(oid.KeyUsages(crt.KeyUsage), ", "))
	}
	if len(crt.SubjectKeyId) > 0 {
		fmt.Fprintf(w, "  SKID: %x\n", crt.SubjectKeyId)
	}
	if len(crt.AuthorityKeyId) > 0 {
		fmt.Fprintf(w, "  IKID: %x\n", crt.AuthorityKeyId)
	}
}

// SlotInfo prints slot details
func SlotInfo(w io.Writer, si *crypto11.SlotInfo) {
	fmt.Fprintf(w, "Slot: %d\n", si.ID)
	printIfNotEmpty(w, "Description", si.Description)
	printIfNotEmpty(w, "Manufacturer", si.Manufacturer)
	fmt.Fprintf(w, "  Hardware version: %s\n", si.HardwareVersion)
	fmt.Fprintf(w, "  Firmware version: %s\n", si.FirmwareVersion)
	fmt.Fprintf(w, "  Flags: %s\n", flags(
		si.TokenPresent(), "token present",
		si.RemovableDevice(), "removable device",
		si.HardwareSlot(), "hardware slot",
	))
}

// TokenInfo prints token details
func TokenInfo(w io.Writer, ti *crypto11.TokenInfo) {
	fmt.Fprintf(w, "Slot: %d\n", ti.SlotID)
	printIfNotEmpty(w, "Label", ti.Label)
	printIfNotEmpty(w, "Manufacturer", ti.Manufacturer)
	printIfNotEmpty(w, "Model", ti.Model)
	printIfNotEmpty(w, "Serial", ti.SerialNumber)
	fmt.Fprintf(w, "  Sessions: %d/%d\n", ti.SessionCount, ti.MaxSessionCount)
	fmt.Fprintf(w, "  RW sessions: %d/%d\n", ti.RwSessionCount, ti.MaxRwSessionCount)
	fmt.Fprintf(w, "  PIN length: %d-%d\n", ti.MinPinLen, ti.MaxPinLen)
	fmt.Fprintf(w, "  Hardware version: %s\n", ti.HardwareVersion)
	fmt.Fprintf(w, "  Firmware version: %s\n", ti.FirmwareVersion)
	printIfNotEmpty(w, "Time", ti.UTCTime)
	fmt.Fprintf(w, "  User PIN: %s\n", flags(
		ti.UserPinInitialized(), "initialized",
		ti.UserPinCountLow(), "count low",
		ti.UserPinFinalTry(), "final try",
		ti.UserPinLocked(), "locked",
	))
	fmt.Fprintf(w, "  SO PIN: %s\n", flags(
		ti.SOPinCountLow(), "count low",
		ti.SOPinFinalTry(), "final try",
		ti.SOPinLocked(), "locked",
	))
	fmt.Fprintf(w, "  Flags: %s\n", flags(
		ti.TokenInitialized(), "token initialized",
		ti.LoginRequired(), "login required",
		ti.ProtectedAuthenticationPath(), "protected authentication path",
	))
}

// Tokens prints tokens of the provider
func Tokens(w io.Writer, list []cryptoprov.TokenInfo) {
	for _, ti := range list {
		fmt.Fprintf(w, "Slot: %d\n", ti.SlotID)
		printIfNotEmpty(w, "Description", ti.Description)
		printIfNotEmpty(w, "Manufacturer", ti.Manufacturer)
		printIfNotEmpty(w, "Model", ti.Model)
		printIfNotEmpty(w, "Token serial", ti.Serial)
		printIfNotEmpty(w, "Token label", ti.Label)
	}
}

// Keys prints keys of the provider
func Keys(w io.Writer, list []cryptoprov.KeyInfo) {
	for i, key := range list {
		fmt.Fprintf(w, "[%d]\n", i)
		KeyInfo(w, &key)
	}
}

// KeyInfo prints key details
func KeyInfo(w io.Writer, key *cryptoprov.KeyInfo) {
	fmt.Fprintf(w, "  Id:    %x\n", key.ID)
	printIfNotEmpty(w, "Label", key.Label)
	printIfNotEmpty(w, "Type", key.Type)
	printIfNotEmpty(w, "Class", key.Class)
	if key.PublicKey != "" {
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(key.PublicKey))
	}
}

func printIfNotEmpty(w io.Writer, label, val string) {
	if val != "" {
		fmt.Fprintf(w, "  %s: %s\n", label, val)
	}
}

// flags returns comma separated names of the set flags,
// the arguments are pairs of value and name
func flags(pairs ...any) string {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if set, _ := pairs[i].(bool); set {
			names = append(names, pairs[i+1].(string))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
