package identity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	KeyDevDeviceID      = "telemetry.devDeviceId"
	KeyServiceMachineID = "storage.serviceMachineId"
	KeyMachineID        = "telemetry.machineId"
	KeyMacMachineID     = "telemetry.macMachineId"
	KeySQMID            = "telemetry.sqmId"
)

const (
	machineIDLength    = 64
	macMachineIDLength = 128
)

// Set maps logical identifier names to freshly generated values
type Set map[string]string

// Generate returns a new identifier set. The device id and the service machine
// id share one value, all other values are drawn independently.
func Generate() Set {
	deviceID := uuid.New().String()

	machineID := sha256.Sum256(uuidBytes())
	macMachineID := sha512.Sum512(uuidBytes())

	return Set{
		KeyDevDeviceID:      deviceID,
		KeyServiceMachineID: deviceID,
		KeyMachineID:        hex.EncodeToString(machineID[:]),
		KeyMacMachineID:     hex.EncodeToString(macMachineID[:]),
		KeySQMID:            "{" + strings.ToUpper(uuid.New().String()) + "}",
	}
}

// Keys returns the identifier names sorted alphabetically
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeviceID returns the value shared by the device id and the service machine id
func (s Set) DeviceID() string {
	return s[KeyDevDeviceID]
}

func uuidBytes() []byte {
	id := uuid.New()
	return id[:]
}
