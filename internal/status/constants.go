// internal/status/constants.go
package status

// Blade Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per blade.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the blade health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last completion or transport code.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the blade has been in error.
const SlotSecondsInError = 2

// SlotConnectionState holds the session state code.
const SlotConnectionState = 3

// SlotErrorCount holds the consecutive session-loss count of the client.
const SlotErrorCount = 4

// SlotBladeClass holds the class byte (0 unknown, 4 compute, 5 storage).
const SlotBladeClass = 5

// SlotInletTemp holds the inlet temperature in signed tenths of a degree C.
const SlotInletTemp = 6

// SlotPowerWatts holds the current power reading.
const SlotPowerWatts = 7

// SlotLiveCount is the number of live slots written incrementally.
const SlotLiveCount = 8

// ---- RESERVED RANGE ----

// Slots 8-10 are reserved for future use.
const SlotReservedStart = 8
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where seconds_in_error saturates.
const MaxSecondsInError uint16 = 65535

// ---- UNAVAILABLE MARKERS ----

// InletUnavailable marks a missing inlet reading (int16 minimum).
const InletUnavailable uint16 = 0x8000

// PowerUnavailable marks a missing power reading.
const PowerUnavailable uint16 = 0xFFFF

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy blade.
const HealthOK uint16 = 1

// HealthError represents a blade whose status could not be collected.
const HealthError uint16 = 2

// HealthDegraded represents a collected status with failed items.
const HealthDegraded uint16 = 3

// HealthDisabled represents a blade of unknown class.
const HealthDisabled uint16 = 4
