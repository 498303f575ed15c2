// internal/config/config.go
package config

type Config struct {
	Chassis ChassisConfig `yaml:"chassis" toml:"chassis"`
}

type ChassisConfig struct {
	Transport    TransportConfig     `yaml:"transport" toml:"transport"`
	Blades       []BladeConfig       `yaml:"blades" toml:"blades"`
	Credentials  CredentialsConfig   `yaml:"credentials" toml:"credentials"`
	Sensors      SensorsConfig       `yaml:"sensors" toml:"sensors"`
	Poll         PollConfig          `yaml:"poll" toml:"poll"`
	StatusMemory *StatusMemoryConfig `yaml:"status_memory" toml:"status_memory"`
	Metrics      MetricsConfig       `yaml:"metrics" toml:"metrics"`
	Logging      LoggingConfig       `yaml:"logging" toml:"logging"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	Ports []PortConfig `yaml:"ports" toml:"ports"`
}

// PortConfig is one serial line and the slots wired to it.
type PortConfig struct {
	Address   string `yaml:"address" toml:"address"`
	Baud      int    `yaml:"baud" toml:"baud"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
	Slots     []int  `yaml:"slots" toml:"slots"`
}

// ---- BLADES ----

type BladeConfig struct {
	Slot uint8 `yaml:"slot" toml:"slot"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot" toml:"status_slot"`
	DeviceName string  `yaml:"device_name" toml:"device_name"`
}

// ---- CREDENTIALS ----

type CredentialsConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	AuthType string `yaml:"auth_type" toml:"auth_type"` // none | md5 | password
}

// ---- SENSORS ----

type SensorsConfig struct {
	Inlet  InletConfig         `yaml:"inlet" toml:"inlet"`
	Events []EventStringConfig `yaml:"events" toml:"events"`
	// PrimaryRecordID lets the primary sensor be read without a repository walk.
	PrimaryRecordID *uint16 `yaml:"primary_record_id" toml:"primary_record_id"`
}

// InletConfig corrects the inlet temperature of known board models.
type InletConfig struct {
	Enabled bool               `yaml:"enabled" toml:"enabled"`
	Sensor  uint8              `yaml:"sensor" toml:"sensor"`
	Entries []InletEntryConfig `yaml:"entries" toml:"entries"`
}

type InletEntryConfig struct {
	ManufacturerID uint32  `yaml:"manufacturer_id" toml:"manufacturer_id"`
	ProductID      uint16  `yaml:"product_id" toml:"product_id"`
	Offset         float64 `yaml:"offset" toml:"offset"`
}

// EventStringConfig overrides one entry of the event string table.
type EventStringConfig struct {
	Class   string `yaml:"class" toml:"class"`
	Code    uint8  `yaml:"code" toml:"code"`
	Ordinal int    `yaml:"ordinal" toml:"ordinal"`
	Text    string `yaml:"text" toml:"text"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int      `yaml:"interval_ms" toml:"interval_ms"`
	Sections   []string `yaml:"sections" toml:"sections"` // empty = all
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	Protocol  string `yaml:"protocol" toml:"protocol"` // modbus | ingest
	UnitID    uint8  `yaml:"unit_id" toml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

// ---- AMBIENT ----

type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"` // empty = disabled
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}
